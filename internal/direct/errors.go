package direct

import (
	"errors"
	"fmt"

	"github.com/hnolan/httpbridge/internal/codec"
)

var textPlainHeader = codec.Header{Name: "content-type", Value: "text/plain; charset=utf-8"}

func synthesizeBadRequest(body string) (codec.ResponseHead, []byte) {
	return codec.ResponseHead{Status: 400, Headers: []codec.Header{textPlainHeader}}, []byte(body)
}

func synthesizeServerError(body string) (codec.ResponseHead, []byte) {
	return codec.ResponseHead{Status: 500, Headers: []codec.Header{textPlainHeader}}, []byte(body)
}

func synthesizeBadRequestForDecode(err error) (codec.ResponseHead, []byte) {
	var limitErr *codec.LimitExceededError
	if errors.As(err, &limitErr) {
		return synthesizeBadRequest(fmt.Sprintf("invalid bridge request: body exceeds configured limit (%d bytes)", limitErr.Declared))
	}
	return synthesizeBadRequest("invalid bridge request: " + err.Error())
}
