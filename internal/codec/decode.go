package codec

import "encoding/binary"

// Classify inspects a decoded payload (everything after the stream's u32
// length prefix) and returns its kind without otherwise decoding it.
func Classify(payload []byte) (FrameKind, error) {
	if len(payload) < 2 {
		return 0, malformedf("codec: payload too short (%d bytes, need >= 2)", len(payload))
	}
	if payload[0] != Version {
		return 0, malformedf("codec: unsupported version %d", payload[0])
	}
	k := FrameKind(payload[1])
	switch k {
	case KindRequestInlineLegacy, KindRequestInline, KindRequestStart, KindRequestChunk,
		KindRequestEnd, KindResponseInline, KindResponseStart, KindResponseChunk,
		KindResponseEnd, KindTunnelChunk, KindTunnelClose:
		return k, nil
	default:
		return 0, malformedf("codec: unknown frame type 0x%02x", payload[1])
	}
}

// cursor walks a payload buffer, exposing zero-copy slice views and
// failing closed on truncation or declared lengths over maxLen.
type cursor struct {
	buf    []byte
	pos    int
	maxLen int // 0 = unbounded
}

func (c *cursor) remaining() int { return len(c.buf) - c.pos }

func (c *cursor) u16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, malformedf("codec: truncated u16 at offset %d", c.pos)
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if c.remaining() < 4 {
		return 0, malformedf("codec: truncated u32 at offset %d", c.pos)
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// lpBytes reads a u32-length-prefixed byte slice, returning a zero-copy
// view into the original buffer.
func (c *cursor) lpBytes() ([]byte, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	if c.maxLen > 0 && int(n) > c.maxLen {
		return nil, limitExceeded(int(n), c.maxLen, "codec: declared length %d exceeds limit %d", n, c.maxLen)
	}
	if c.remaining() < int(n) {
		return nil, malformedf("codec: truncated field, declared %d, have %d", n, c.remaining())
	}
	v := c.buf[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return v, nil
}

func (c *cursor) lpString() (string, error) {
	b, err := c.lpBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) atEnd() bool { return c.pos == len(c.buf) }

func (c *cursor) u8() (uint8, error) {
	if c.remaining() < 1 {
		return 0, malformedf("codec: truncated u8 at offset %d", c.pos)
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func decodeHeadersTokenized(c *cursor) ([]Header, error) {
	count, err := c.u32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	headers := make([]Header, 0, count)
	for i := uint32(0); i < count; i++ {
		tok, err := c.u16()
		if err != nil {
			return nil, err
		}
		var name string
		if tok == literalHeaderToken {
			name, err = c.lpString()
			if err != nil {
				return nil, err
			}
		} else {
			if int(tok) >= len(headerTable) {
				return nil, malformedf("codec: header token %d out of range", tok)
			}
			name = headerTable[tok]
		}
		value, err := c.lpString()
		if err != nil {
			return nil, err
		}
		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

func decodeHeadersLegacy(c *cursor) ([]Header, error) {
	count, err := c.u32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	headers := make([]Header, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := c.lpString()
		if err != nil {
			return nil, err
		}
		value, err := c.lpString()
		if err != nil {
			return nil, err
		}
		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

func decodeRequestHeadAndHeaders(c *cursor, legacy bool) (RequestHead, error) {
	var head RequestHead
	fields := make([]string, 6)
	for i := range fields {
		s, err := c.lpString()
		if err != nil {
			return head, err
		}
		fields[i] = s
	}
	head.Method, head.Scheme, head.Authority, head.Path, head.Query, head.Protocol =
		fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	var headers []Header
	var err error
	if legacy {
		headers, err = decodeHeadersLegacy(c)
	} else {
		headers, err = decodeHeadersTokenized(c)
	}
	if err != nil {
		return head, err
	}
	head.Headers = headers
	return head, nil
}

// DecodeRequestInline decodes a complete inline request frame. maxBodyLen,
// if non-zero, bounds the declared body length.
func DecodeRequestInline(payload []byte, maxBodyLen int) (RequestHead, []byte, error) {
	kind, err := Classify(payload)
	if err != nil {
		return RequestHead{}, nil, err
	}
	legacy := kind == KindRequestInlineLegacy
	if !legacy && kind != KindRequestInline {
		return RequestHead{}, nil, malformedf("codec: expected request-inline frame, got %s", kind)
	}
	c := &cursor{buf: payload, pos: 2}
	head, err := decodeRequestHeadAndHeaders(c, legacy)
	if err != nil {
		return RequestHead{}, nil, err
	}
	c.maxLen = maxBodyLen
	body, err := c.lpBytes()
	if err != nil {
		return RequestHead{}, nil, err
	}
	if !c.atEnd() {
		return RequestHead{}, nil, malformedf("codec: %d trailing bytes after request-inline frame", c.remaining())
	}
	return head, body, nil
}

// DecodeRequestStart decodes a request-start frame's head.
func DecodeRequestStart(payload []byte) (RequestHead, error) {
	kind, err := Classify(payload)
	if err != nil {
		return RequestHead{}, err
	}
	if kind != KindRequestStart {
		return RequestHead{}, malformedf("codec: expected request-start frame, got %s", kind)
	}
	c := &cursor{buf: payload, pos: 2}
	head, err := decodeRequestHeadAndHeaders(c, false)
	if err != nil {
		return RequestHead{}, err
	}
	bodyLen, err := c.u32()
	if err != nil {
		return RequestHead{}, err
	}
	if bodyLen != 0 {
		return RequestHead{}, malformedf("codec: request-start frame declares non-zero body_len %d", bodyLen)
	}
	if !c.atEnd() {
		return RequestHead{}, malformedf("codec: %d trailing bytes after request-start frame", c.remaining())
	}
	return head, nil
}

// DecodeRequestChunk decodes a request-chunk frame's payload bytes.
func DecodeRequestChunk(payload []byte, maxLen int) ([]byte, error) {
	return decodeChunkLike(payload, KindRequestChunk, maxLen)
}

// DecodeRequestEnd validates a request-end frame carries no further bytes.
func DecodeRequestEnd(payload []byte) error {
	return decodeEmptyLike(payload, KindRequestEnd)
}

// DecodeResponse decodes a complete inline response frame.
func DecodeResponse(payload []byte, maxBodyLen int) (ResponseHead, []byte, error) {
	kind, err := Classify(payload)
	if err != nil {
		return ResponseHead{}, nil, err
	}
	if kind != KindResponseInline {
		return ResponseHead{}, nil, malformedf("codec: expected response-inline frame, got %s", kind)
	}
	c := &cursor{buf: payload, pos: 2}
	status, err := c.u16()
	if err != nil {
		return ResponseHead{}, nil, err
	}
	flags, err := c.u8()
	if err != nil {
		return ResponseHead{}, nil, err
	}
	headers, err := decodeHeadersTokenized(c)
	if err != nil {
		return ResponseHead{}, nil, err
	}
	c.maxLen = maxBodyLen
	body, err := c.lpBytes()
	if err != nil {
		return ResponseHead{}, nil, err
	}
	if !c.atEnd() {
		return ResponseHead{}, nil, malformedf("codec: %d trailing bytes after response-inline frame", c.remaining())
	}
	return ResponseHead{Status: status, Headers: headers, Detach: flags&flagDetach != 0}, body, nil
}

// DecodeResponseStart decodes a response-start frame's head.
func DecodeResponseStart(payload []byte) (ResponseHead, error) {
	kind, err := Classify(payload)
	if err != nil {
		return ResponseHead{}, err
	}
	if kind != KindResponseStart {
		return ResponseHead{}, malformedf("codec: expected response-start frame, got %s", kind)
	}
	c := &cursor{buf: payload, pos: 2}
	status, err := c.u16()
	if err != nil {
		return ResponseHead{}, err
	}
	flags, err := c.u8()
	if err != nil {
		return ResponseHead{}, err
	}
	headers, err := decodeHeadersTokenized(c)
	if err != nil {
		return ResponseHead{}, err
	}
	bodyLen, err := c.u32()
	if err != nil {
		return ResponseHead{}, err
	}
	if bodyLen != 0 {
		return ResponseHead{}, malformedf("codec: response-start frame declares non-zero body_len %d", bodyLen)
	}
	if !c.atEnd() {
		return ResponseHead{}, malformedf("codec: %d trailing bytes after response-start frame", c.remaining())
	}
	return ResponseHead{Status: status, Headers: headers, Detach: flags&flagDetach != 0}, nil
}

// DecodeResponseChunk decodes a response-chunk frame's payload bytes.
func DecodeResponseChunk(payload []byte, maxLen int) ([]byte, error) {
	return decodeChunkLike(payload, KindResponseChunk, maxLen)
}

// DecodeResponseEnd validates a response-end frame carries no further bytes.
func DecodeResponseEnd(payload []byte) error {
	return decodeEmptyLike(payload, KindResponseEnd)
}

// DecodeTunnelChunk decodes a tunnel-chunk frame's opaque bytes.
func DecodeTunnelChunk(payload []byte, maxLen int) ([]byte, error) {
	return decodeChunkLike(payload, KindTunnelChunk, maxLen)
}

// DecodeTunnelClose validates a tunnel-close frame carries no further bytes.
func DecodeTunnelClose(payload []byte) error {
	return decodeEmptyLike(payload, KindTunnelClose)
}

func decodeChunkLike(payload []byte, want FrameKind, maxLen int) ([]byte, error) {
	kind, err := Classify(payload)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, malformedf("codec: expected %s frame, got %s", want, kind)
	}
	c := &cursor{buf: payload, pos: 2, maxLen: maxLen}
	data, err := c.lpBytes()
	if err != nil {
		return nil, err
	}
	if !c.atEnd() {
		return nil, malformedf("codec: %d trailing bytes after %s frame", c.remaining(), want)
	}
	return data, nil
}

func decodeEmptyLike(payload []byte, want FrameKind) error {
	kind, err := Classify(payload)
	if err != nil {
		return err
	}
	if kind != want {
		return malformedf("codec: expected %s frame, got %s", want, kind)
	}
	if len(payload) != 2 {
		return malformedf("codec: %d trailing bytes after %s frame", len(payload)-2, want)
	}
	return nil
}
