package codec

import (
	"encoding/binary"
	"io"
)

// DefaultCoalesceThreshold is the payload size below which WriteFrame
// issues a single Write combining the length prefix and payload, and
// above which it issues two (or three, for chunk frames) separate
// writes. This is a throughput hint only: receivers must not assume
// any particular batching of bytes on the wire.
const DefaultCoalesceThreshold = 4096

// WriteFrame writes one length-prefixed frame: u32 length followed by
// payload. For payloads at or below threshold it issues a single Write
// call; for larger payloads, two separate writes (prefix, then body),
// skipping the full payload copy a combined buffer would need.
func WriteFrame(w io.Writer, payload []byte, threshold int) error {
	if threshold <= 0 {
		threshold = DefaultCoalesceThreshold
	}
	if len(payload) <= threshold {
		buf := make([]byte, 4+len(payload))
		binary.BigEndian.PutUint32(buf, uint32(len(payload)))
		copy(buf[4:], payload)
		_, err := w.Write(buf)
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteChunkFrame writes a chunk-shaped frame (version, type, u32 len,
// data). Above the threshold it issues three writes — length prefix,
// the fixed 6-byte frame header, then the raw chunk bytes — avoiding a
// full copy of the (potentially large) chunk payload.
func WriteChunkFrame(w io.Writer, kind FrameKind, data []byte, threshold int) error {
	if threshold <= 0 {
		threshold = DefaultCoalesceThreshold
	}
	if len(data) <= threshold {
		payload := make([]byte, 0, 6+len(data))
		payload = append(payload, Version, byte(kind))
		payload = putLP32(payload, data)
		return WriteFrame(w, payload, threshold)
	}

	frameLen := uint32(6 + len(data))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], frameLen)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}

	var hdr [6]byte
	hdr[0], hdr[1] = Version, byte(kind)
	binary.BigEndian.PutUint32(hdr[2:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	_, err := w.Write(data)
	return err
}

// ReadFrame reads one length-prefixed frame from r, enforcing frameLimit
// (the maximum payload length; 0 = unbounded) before allocating, so an
// over-limit declared length never allocates proportionally.
func ReadFrame(r io.Reader, frameLimit int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if frameLimit > 0 && int(n) > frameLimit {
		return nil, limitExceeded(int(n), frameLimit, "codec: frame length %d exceeds limit %d", n, frameLimit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
