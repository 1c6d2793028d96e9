// Package luahandler adapts an embedded Lua script into a
// handler.Handler, standing in for a handler running in a managed
// host language: the bridge has to survive a handler whose own
// runtime is not a Go goroutine, GC pause timing included.
package luahandler

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/handler"
)

// Handler runs one Lua script per request. gopher-lua's *lua.LState is
// not safe for concurrent use, so each invocation gets a fresh state
// rather than sharing one across requests.
type Handler struct {
	script string
}

// New returns a handler.Handler backed by the given Lua source. The
// script sees a global `request` table with method/path/query/headers/body
// fields, and must set a global `response` table with status/headers/body
// before returning.
func New(script string) handler.Handler {
	h := &Handler{script: script}
	return handler.Handler{Whole: h.handle}
}

func (h *Handler) handle(ctx context.Context, head codec.RequestHead, body []byte) (codec.ResponseHead, []byte, *handler.DetachedSocket, error) {
	l := lua.NewState()
	defer l.Close()
	l.SetContext(ctx)

	l.SetGlobal("request", requestTable(l, head, body))

	if err := l.DoString(h.script); err != nil {
		return codec.ResponseHead{}, nil, nil, fmt.Errorf("luahandler: script error: %w", err)
	}

	respVal := l.GetGlobal("response")
	respTable, ok := respVal.(*lua.LTable)
	if !ok {
		return codec.ResponseHead{}, nil, nil, fmt.Errorf("luahandler: script did not set a response table")
	}

	respHead, respBody, err := decodeResponseTable(respTable)
	if err != nil {
		return codec.ResponseHead{}, nil, nil, err
	}
	return respHead, respBody, nil, nil
}

func requestTable(l *lua.LState, head codec.RequestHead, body []byte) *lua.LTable {
	t := l.NewTable()
	t.RawSetString("method", lua.LString(head.Method))
	t.RawSetString("scheme", lua.LString(head.Scheme))
	t.RawSetString("authority", lua.LString(head.Authority))
	t.RawSetString("path", lua.LString(head.Path))
	t.RawSetString("query", lua.LString(head.Query))
	t.RawSetString("body", lua.LString(string(body)))

	headers := l.NewTable()
	for _, h := range head.Headers {
		headers.Append(headerEntry(l, h.Name, h.Value))
	}
	t.RawSetString("headers", headers)

	return t
}

func headerEntry(l *lua.LState, name, value string) *lua.LTable {
	e := l.NewTable()
	e.RawSetString("name", lua.LString(name))
	e.RawSetString("value", lua.LString(value))
	return e
}

func decodeResponseTable(t *lua.LTable) (codec.ResponseHead, []byte, error) {
	status, ok := t.RawGetString("status").(lua.LNumber)
	if !ok {
		return codec.ResponseHead{}, nil, fmt.Errorf("luahandler: response.status must be a number")
	}

	var headers []codec.Header
	if hv, ok := t.RawGetString("headers").(*lua.LTable); ok {
		hv.ForEach(func(_, v lua.LValue) {
			entry, ok := v.(*lua.LTable)
			if !ok {
				return
			}
			name := lua.LVAsString(entry.RawGetString("name"))
			value := lua.LVAsString(entry.RawGetString("value"))
			headers = append(headers, codec.Header{Name: name, Value: value})
		})
	}

	body := lua.LVAsString(t.RawGetString("body"))

	return codec.ResponseHead{Status: uint16(status), Headers: headers}, []byte(body), nil
}
