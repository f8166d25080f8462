package cbor

import (
	"errors"
	"fmt"
	"io"
)

// Context locates an item inside the body being walked.
type Context struct {
	// Key is the map key the item is the value of. Empty for array
	// elements and for values with no pending key.
	Key string

	// Depth is the nesting level of the item; root container entries are 1.
	Depth int

	// Parent is the key under which the enclosing container was found. For
	// elements of an array it is the key the array was found under.
	Parent string

	// InArray is set for elements of an array.
	InArray bool
}

// Visitor receives the items of a body from Walk.
type Visitor interface {
	// Value is called for every primitive value.
	Value(ctx Context, ev Event)
	// Enter is called when a container starts, before any of its items.
	Enter(ctx Context, ev Event)
	// Leave is called when the container entered with the same ctx ends.
	Leave(ctx Context)
}

// frame is the per-container accumulator of the walk
type frame struct {
	depth   int
	parent  string
	inArray bool
	key     string
	hasKey  bool
}

func (f *frame) context() Context {
	return Context{Key: f.key, Depth: f.depth, Parent: f.parent, InArray: f.inArray}
}

func (f *frame) clear() {
	f.key = ""
	f.hasKey = false
}

// Walk decodes body and reports every item to v.
//
// Within a map, a text item with no pending key becomes the pending key and
// is not reported; the next item is reported with that key and clears it.
// A container is reported through Enter with the pending key, walked one
// level deeper with the pending key as its Parent, then reported through
// Leave. Walk stops at the first decode error, which wraps ErrMalformed.
func Walk(body []byte, v Visitor) error {
	w := walker{r: NewReader(body), v: v}
	for {
		ev, err := w.r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		top := frame{depth: 0}
		if err := w.item(&top, ev); err != nil {
			return err
		}
	}
}

type walker struct {
	r *Reader
	v Visitor
}

func (w *walker) level(f *frame) error {
	for {
		ev, err := w.r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: container not terminated", ErrMalformed)
			}
			return err
		}
		if ev.Type == EventEnd {
			return nil
		}
		if err := w.item(f, ev); err != nil {
			return err
		}
	}
}

func (w *walker) item(f *frame, ev Event) error {
	switch {
	case ev.Type == EventText && !f.inArray && !f.hasKey && f.depth > 0:
		f.key = ev.Text()
		f.hasKey = true
		return nil

	case ev.IsContainer():
		ctx := f.context()
		w.v.Enter(ctx, ev)
		child := frame{
			depth:   f.depth + 1,
			parent:  f.key,
			inArray: ev.Type == EventArrayStart,
		}
		if f.inArray {
			child.parent = f.parent
		}
		if err := w.level(&child); err != nil {
			return err
		}
		w.v.Leave(ctx)
		f.clear()
		return nil

	default:
		w.v.Value(f.context(), ev)
		f.clear()
		return nil
	}
}
