package rpc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jward/binscope"
)

// params holds named request parameters.
type params map[string]json.RawMessage

func parseParams(raw json.RawMessage) (params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return params{}, nil
	}
	var p params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: params must be an object: %v", binscope.ErrMalformedRequest, err)
	}
	return p, nil
}

func (p params) raw(key string) (json.RawMessage, error) {
	v, ok := p[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, fmt.Errorf("%w: missing parameter %q", binscope.ErrMalformedRequest, key)
	}
	return v, nil
}

func (p params) string(key string) (string, error) {
	v, err := p.raw(key)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: parameter %q must be a string", binscope.ErrMalformedRequest, key)
	}
	return s, nil
}

func (p params) int(key string) (int, error) {
	v, err := p.raw(key)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("%w: parameter %q must be an integer", binscope.ErrMalformedRequest, key)
	}
	return n, nil
}

func (p params) uint64(key string) (uint64, error) {
	v, err := p.raw(key)
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("%w: parameter %q must be an unsigned integer", binscope.ErrMalformedRequest, key)
	}
	return n, nil
}

// bytes accepts either an array of integers in 0..255 or a base64 string.
func (p params) bytes(key string) ([]byte, error) {
	v, err := p.raw(key)
	if err != nil {
		return nil, err
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q is not valid base64", binscope.ErrMalformedRequest, key)
		}
		return b, nil
	}
	var ints []int
	if err := json.Unmarshal(v, &ints); err != nil {
		return nil, fmt.Errorf("%w: parameter %q must be a byte array or base64 string", binscope.ErrMalformedRequest, key)
	}
	out := make([]byte, len(ints))
	for i, n := range ints {
		if n < 0 || n > 255 {
			return nil, fmt.Errorf("%w: parameter %q: element %d out of byte range: %d", binscope.ErrMalformedRequest, key, i, n)
		}
		out[i] = byte(n)
	}
	return out, nil
}
