package luahandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnolan/httpbridge/internal/codec"
)

const echoScript = `
response = {
	status = 200,
	headers = {
		{ name = "X-Echoed-Path", value = request.path },
	},
	body = request.body,
}
`

func TestHandlerEchoesRequestBody(t *testing.T) {
	h := New(echoScript)

	head, body, detach, err := h.Whole(context.Background(), codec.RequestHead{
		Method: "POST",
		Path:   "/greet",
	}, []byte("hello lua"))

	require.NoError(t, err)
	assert.Nil(t, detach)
	assert.EqualValues(t, 200, head.Status)
	assert.Equal(t, "hello lua", string(body))
	assert.Equal(t, []string{"/greet"}, head.HeaderValues("X-Echoed-Path"))
}

func TestHandlerSurfacesScriptErrors(t *testing.T) {
	h := New(`error("boom")`)

	_, _, _, err := h.Whole(context.Background(), codec.RequestHead{}, nil)
	require.Error(t, err)
}

func TestHandlerRequiresResponseTable(t *testing.T) {
	h := New(`-- no response set`)

	_, _, _, err := h.Whole(context.Background(), codec.RequestHead{}, nil)
	require.Error(t, err)
}
