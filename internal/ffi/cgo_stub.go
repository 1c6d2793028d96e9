//go:build bridge_cgo

// This file documents the real binding a production build would use
// to link against the native proxy's shared library. It is guarded by
// the bridge_cgo build tag and is never compiled as part of this
// module, since no such library is available to link here; the
// in-memory fake in internal/ffi/fake stands in for it everywhere
// else in this repository.
package ffi

/*
#include <stdint.h>

typedef void (*bridge_callback)(uint64_t request_id, const uint8_t *payload, uint64_t len, void *user_data);

extern uint32_t abi_version(void);
extern void *start_proxy(const void *config, uint16_t *out_port);
extern void stop_proxy(void *handle);
extern int push_response_frame(void *handle, uint64_t request_id, const uint8_t *ptr, uint64_t len);
extern int poll_request_frame(void *handle, int64_t timeout_ms, uint64_t *req_id_out, const uint8_t **payload_ptr_out, uint64_t *payload_len_out);
extern void free_request_payload(const uint8_t *ptr, uint64_t len);
*/
import "C"

// cgoNativeProxy would wrap the C entry points above behind the
// NativeProxy interface. Left unimplemented: wiring StartConfig into
// the native config struct and registering a cgo-exported trampoline
// for bridge_callback is specific to the native proxy's ABI, which
// this exercise has no binary for.
type cgoNativeProxy struct{}
