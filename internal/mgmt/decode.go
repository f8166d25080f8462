package mgmt

import (
	"errors"
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
)

// ErrMissingField is wrapped when a response lacks a required field.
var ErrMissingField = errors.New("missing field")

// decodeRequired walks body for key at depth and fails when no value of
// type want was found.
func decodeRequired(body []byte, key string, depth int, want cbor.EventType, fn cbor.FieldFunc) error {
	var found bool
	if err := cbor.Walk(body, cbor.NewFieldMap().OnAt(key, depth, cbor.Found(&found, want, fn))); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return nil
}

// decodeTextList collects the text elements of the array found under key at
// depth 1.
func decodeTextList(body []byte, key string, list *[]string) error {
	var found bool
	err := cbor.Walk(body, cbor.NewFieldMap().
		OnElement(key, 2, func(_ cbor.Context, ev cbor.Event) {
			if ev.Type == cbor.EventText {
				*list = append(*list, ev.Text())
			}
		}).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ctx.Depth == 1 && ctx.Key == key && ev.Type == cbor.EventArrayStart {
				found = true
			}
		}))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return nil
}

// uintInto returns a FieldFunc storing into the field selected by dst on
// the record cur currently points at.
func uintInto[T any](cur **T, dst func(*T) *uint64) cbor.FieldFunc {
	return func(_ cbor.Context, ev cbor.Event) {
		if *cur == nil {
			return
		}
		if v, ok := ev.AsUint(); ok {
			*dst(*cur) = v
		}
	}
}
