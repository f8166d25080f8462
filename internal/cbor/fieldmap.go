package cbor

// AnyDepth matches an item at any nesting level.
const AnyDepth = 0

// FieldFunc consumes a matched value.
type FieldFunc func(ctx Context, ev Event)

type fieldRule struct {
	key     string
	depth   int
	parent  string
	element bool // match array elements under parent instead of a key
	fn      FieldFunc
}

func (r fieldRule) matches(ctx Context) bool {
	if r.depth != AnyDepth && r.depth != ctx.Depth {
		return false
	}
	if r.element {
		return ctx.InArray && ctx.Parent == r.parent
	}
	if ctx.InArray || ctx.Key != r.key {
		return false
	}
	return r.parent == "" || r.parent == ctx.Parent
}

// FieldMap is a table-driven Visitor. Rules are tried in registration order
// and the first match consumes the value.
type FieldMap struct {
	rules []fieldRule
	enter func(Context, Event)
	leave func(Context)
}

// NewFieldMap creates an empty FieldMap.
func NewFieldMap() *FieldMap {
	return &FieldMap{}
}

// On matches key at any depth.
func (m *FieldMap) On(key string, fn FieldFunc) *FieldMap {
	return m.OnAt(key, AnyDepth, fn)
}

// OnAt matches key at the given depth.
func (m *FieldMap) OnAt(key string, depth int, fn FieldFunc) *FieldMap {
	m.rules = append(m.rules, fieldRule{key: key, depth: depth, fn: fn})
	return m
}

// OnIn matches key at the given depth inside a container found under parent.
func (m *FieldMap) OnIn(parent, key string, depth int, fn FieldFunc) *FieldMap {
	m.rules = append(m.rules, fieldRule{key: key, depth: depth, parent: parent, fn: fn})
	return m
}

// OnElement matches primitive elements of arrays found under parent.
func (m *FieldMap) OnElement(parent string, depth int, fn FieldFunc) *FieldMap {
	m.rules = append(m.rules, fieldRule{parent: parent, depth: depth, element: true, fn: fn})
	return m
}

// OnEnter registers a hook called for every container start.
func (m *FieldMap) OnEnter(fn func(Context, Event)) *FieldMap {
	m.enter = fn
	return m
}

// OnLeave registers a hook called for every container end.
func (m *FieldMap) OnLeave(fn func(Context)) *FieldMap {
	m.leave = fn
	return m
}

// Value implements Visitor.
func (m *FieldMap) Value(ctx Context, ev Event) {
	for _, r := range m.rules {
		if r.matches(ctx) {
			r.fn(ctx, ev)
			return
		}
	}
}

// Enter implements Visitor.
func (m *FieldMap) Enter(ctx Context, ev Event) {
	if m.enter != nil {
		m.enter(ctx, ev)
	}
}

// Leave implements Visitor.
func (m *FieldMap) Leave(ctx Context) {
	if m.leave != nil {
		m.leave(ctx)
	}
}

// Setters for the common field types. A value of the wrong type is ignored
// and, where given, the found flag stays untouched.

// SetUint stores an unsigned integer.
func SetUint(dst *uint64) FieldFunc {
	return func(_ Context, ev Event) {
		if v, ok := ev.AsUint(); ok {
			*dst = v
		}
	}
}

// SetInt stores a signed integer.
func SetInt(dst *int64) FieldFunc {
	return func(_ Context, ev Event) {
		if v, ok := ev.AsInt(); ok {
			*dst = v
		}
	}
}

// SetText stores a text string.
func SetText(dst *string) FieldFunc {
	return func(_ Context, ev Event) {
		if ev.Type == EventText {
			*dst = ev.Text()
		}
	}
}

// SetBytes stores a copy of a byte string.
func SetBytes(dst *[]byte) FieldFunc {
	return func(_ Context, ev Event) {
		if ev.Type == EventBytes {
			*dst = append([]byte(nil), ev.Data...)
		}
	}
}

// SetBool stores a bool.
func SetBool(dst *bool) FieldFunc {
	return func(_ Context, ev Event) {
		if ev.Type == EventBool {
			*dst = ev.Bool
		}
	}
}

// Found wraps fn so that found is set whenever fn is invoked with a value of
// the expected type.
func Found(found *bool, want EventType, fn FieldFunc) FieldFunc {
	return func(ctx Context, ev Event) {
		if ev.Type == want {
			*found = true
		}
		fn(ctx, ev)
	}
}
