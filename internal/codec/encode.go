package codec

import "encoding/binary"

// putLP32 appends a big-endian u32 length prefix followed by data.
func putLP32(buf []byte, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, data...)
	return buf
}

func putU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func putU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

// encodeHeaders appends the tokenized header-count + header list encoding.
// A name takes a table token only when it is spelled exactly as its
// lowercase table entry; any other spelling (e.g. "Host") is written as
// a literal so its original casing survives decoding.
func encodeHeaders(buf []byte, headers []Header) []byte {
	buf = putU32(buf, uint32(len(headers)))
	for _, h := range headers {
		if tok, ok := headerTokenOf(h.Name); ok {
			buf = putU16(buf, tok)
		} else {
			buf = putU16(buf, literalHeaderToken)
			buf = putLP32(buf, []byte(h.Name))
		}
		buf = putLP32(buf, []byte(h.Value))
	}
	return buf
}

// encodeHeadersLegacy appends the legacy (always-literal-name) encoding.
// Only used for interop tests; this implementation always emits the
// tokenized variant.
func encodeHeadersLegacy(buf []byte, headers []Header) []byte {
	buf = putU32(buf, uint32(len(headers)))
	for _, h := range headers {
		buf = putLP32(buf, []byte(h.Name))
		buf = putLP32(buf, []byte(h.Value))
	}
	return buf
}

func requestHeadFields(head RequestHead) []string {
	return []string{head.Method, head.Scheme, head.Authority, head.Path, head.Query, head.Protocol}
}

// EncodeRequestInline encodes a complete request (head + body) as a
// single inline frame using the tokenized header encoding.
func EncodeRequestInline(head RequestHead, body []byte) []byte {
	buf := make([]byte, 0, 64+len(body))
	buf = append(buf, Version, byte(KindRequestInline))
	for _, f := range requestHeadFields(head) {
		buf = putLP32(buf, []byte(f))
	}
	buf = encodeHeaders(buf, head.Headers)
	buf = putLP32(buf, body)
	return buf
}

// EncodeRequestStart encodes the head of a streamed request; body_len is
// always 0 for start frames, the body follows as chunk frames.
func EncodeRequestStart(head RequestHead) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, Version, byte(KindRequestStart))
	for _, f := range requestHeadFields(head) {
		buf = putLP32(buf, []byte(f))
	}
	buf = encodeHeaders(buf, head.Headers)
	buf = putU32(buf, 0)
	return buf
}

// EncodeRequestChunk encodes one request body chunk.
func EncodeRequestChunk(data []byte) []byte {
	buf := make([]byte, 0, 6+len(data))
	buf = append(buf, Version, byte(KindRequestChunk))
	buf = putLP32(buf, data)
	return buf
}

// EncodeRequestEnd encodes the terminating request frame (no body).
func EncodeRequestEnd() []byte {
	return []byte{Version, byte(KindRequestEnd)}
}

func responseFlags(detach bool) uint8 {
	if detach {
		return flagDetach
	}
	return 0
}

// EncodeResponse encodes a complete inline response.
func EncodeResponse(head ResponseHead, body []byte) []byte {
	buf := make([]byte, 0, 32+len(body))
	buf = append(buf, Version, byte(KindResponseInline))
	buf = putU16(buf, head.Status)
	buf = append(buf, responseFlags(head.Detach))
	buf = encodeHeaders(buf, head.Headers)
	buf = putLP32(buf, body)
	return buf
}

// EncodeResponseStart encodes the head of a streamed response.
// Detach is carried in the start frame's flags byte, not the end
// frame, since the peer must know before any response-chunk frame
// whether the connection will become a tunnel.
func EncodeResponseStart(status uint16, headers []Header) []byte {
	return EncodeResponseStartDetach(status, headers, false)
}

// EncodeResponseStartDetach is EncodeResponseStart with an explicit
// detach flag.
func EncodeResponseStartDetach(status uint16, headers []Header, detach bool) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, Version, byte(KindResponseStart))
	buf = putU16(buf, status)
	buf = append(buf, responseFlags(detach))
	buf = encodeHeaders(buf, headers)
	buf = putU32(buf, 0)
	return buf
}

// EncodeResponseChunk encodes one response body chunk.
func EncodeResponseChunk(data []byte) []byte {
	buf := make([]byte, 0, 6+len(data))
	buf = append(buf, Version, byte(KindResponseChunk))
	buf = putLP32(buf, data)
	return buf
}

// EncodeResponseEnd encodes the terminating response frame.
func EncodeResponseEnd() []byte {
	return []byte{Version, byte(KindResponseEnd)}
}

// EncodeTunnelChunk encodes opaque tunnel bytes in either direction.
func EncodeTunnelChunk(data []byte) []byte {
	buf := make([]byte, 0, 6+len(data))
	buf = append(buf, Version, byte(KindTunnelChunk))
	buf = putLP32(buf, data)
	return buf
}

// EncodeTunnelClose encodes the tunnel close marker.
func EncodeTunnelClose() []byte {
	return []byte{Version, byte(KindTunnelClose)}
}
