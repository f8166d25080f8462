package cbor

import (
	"fmt"
	"reflect"

	fxcbor "github.com/fxamacker/cbor/v2"
)

var decMode fxcbor.DecMode

func init() {
	var err error
	decMode, err = fxcbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		IndefLength:     fxcbor.IndefLengthAllowed,
		MaxNestedLevels: MaxNesting,
		DupMapKey:       fxcbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor: invalid decode options: %v", err))
	}
}

// Decode decodes a complete body into generic Go values. Maps decode to
// map[string]any, arrays to []any, integers to uint64 or int64 and byte
// strings to []byte.
func Decode(body []byte) (any, error) {
	var v any
	if len(body) == 0 {
		return nil, nil
	}
	if err := decMode.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// Diagnose returns the extended diagnostic notation of body, e.g.
// {"rc": 0}.
func Diagnose(body []byte) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	s, err := fxcbor.Diagnose(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}
