package cbor

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"
)

// recorder flattens a walk into strings of the form kind:key@depth/parent=value
type recorder struct {
	lines []string
}

func (r *recorder) Value(ctx Context, ev Event) {
	var v string
	switch ev.Type {
	case EventText:
		v = ev.Text()
	case EventBytes:
		v = fmt.Sprintf("%x", ev.Data)
	case EventBool:
		v = fmt.Sprint(ev.Bool)
	default:
		i, _ := ev.AsInt()
		v = fmt.Sprint(i)
	}
	r.lines = append(r.lines, fmt.Sprintf("value:%s@%d/%s=%s", ctx.Key, ctx.Depth, ctx.Parent, v))
}

func (r *recorder) Enter(ctx Context, ev Event) {
	r.lines = append(r.lines, fmt.Sprintf("enter:%s@%d/%s", ctx.Key, ctx.Depth, ctx.Parent))
}

func (r *recorder) Leave(ctx Context) {
	r.lines = append(r.lines, fmt.Sprintf("leave:%s@%d/%s", ctx.Key, ctx.Depth, ctx.Parent))
}

func build(t *testing.T, fn func(w *Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	fn(w)
	if err := w.Err(); err != nil {
		t.Fatalf("writer error = %v", err)
	}
	if w.Depth() != 0 {
		t.Fatalf("writer depth = %d, want 0", w.Depth())
	}
	return buf.Bytes()
}

func TestWalk(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *Writer)
		want  []string
	}{
		{
			name: "structured error shape",
			build: func(w *Writer) {
				w.StartMap()
				w.IntField("rc", 0)
				w.Text("ret")
				w.StartMap()
				w.UintField("group", 8)
				w.UintField("rc", 3)
				w.End()
				w.End()
			},
			want: []string{
				"enter:@0/",
				"value:rc@1/=0",
				"enter:ret@1/",
				"value:group@2/ret=8",
				"value:rc@2/ret=3",
				"leave:ret@1/",
				"leave:@0/",
			},
		},
		{
			name: "array of text",
			build: func(w *Writer) {
				w.StartMap()
				w.Text("stat_list")
				w.StartArray()
				w.Text("smp")
				w.Text("ble")
				w.End()
				w.End()
			},
			want: []string{
				"enter:@0/",
				"enter:stat_list@1/",
				"value:@2/stat_list=smp",
				"value:@2/stat_list=ble",
				"leave:stat_list@1/",
				"leave:@0/",
			},
		},
		{
			name: "array of maps inherits the array key as parent",
			build: func(w *Writer) {
				w.StartMap()
				w.Text("images")
				w.StartArray()
				w.StartMap()
				w.UintField("slot", 0)
				w.BoolField("active", true)
				w.End()
				w.StartMap()
				w.UintField("slot", 1)
				w.End()
				w.End()
				w.End()
			},
			want: []string{
				"enter:@0/",
				"enter:images@1/",
				"enter:@2/images",
				"value:slot@3/images=0",
				"value:active@3/images=true",
				"leave:@2/images",
				"enter:@2/images",
				"value:slot@3/images=1",
				"leave:@2/images",
				"leave:images@1/",
				"leave:@0/",
			},
		},
		{
			name: "chunked strings arrive whole",
			build: func(w *Writer) {
				w.StartMap()
				w.TextChunks("o", "ut")
				w.TextChunks("hel", "lo ", "world")
				w.Text("raw")
				w.BytesChunks([]byte{0xde}, []byte{0xad})
				w.End()
			},
			want: []string{
				"enter:@0/",
				"value:out@1/=hello world",
				"value:raw@1/=dead",
				"leave:@0/",
			},
		},
		{
			name: "key consumed by non-text value",
			build: func(w *Writer) {
				w.StartMap()
				w.IntField("a", -5)
				w.Text("b")
				w.Text("c")
				w.End()
			},
			want: []string{
				"enter:@0/",
				"value:a@1/=-5",
				"value:b@1/=c",
				"leave:@0/",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := build(t, tt.build)
			rec := &recorder{}
			if err := Walk(body, rec); err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if !reflect.DeepEqual(rec.lines, tt.want) {
				t.Errorf("Walk() =\n%v\nwant\n%v", rec.lines, tt.want)
			}
		})
	}
}

func TestWalkMalformed(t *testing.T) {
	err := Walk([]byte{0xbf, 0x61, 'a', 0x01}, &recorder{})
	if err == nil {
		t.Fatal("Walk() on unterminated map succeeded")
	}
}

func TestWalkEmptyBody(t *testing.T) {
	rec := &recorder{}
	if err := Walk(nil, rec); err != nil {
		t.Fatalf("Walk(nil) error = %v", err)
	}
	if len(rec.lines) != 0 {
		t.Errorf("Walk(nil) produced %v", rec.lines)
	}
}

func TestFieldMap(t *testing.T) {
	body := build(t, func(w *Writer) {
		w.StartMap()
		w.IntField("rc", 6)
		w.Text("ret")
		w.StartMap()
		w.UintField("group", 8)
		w.UintField("rc", 3)
		w.End()
		w.TextField("name", "fs")
		w.BytesField("val", []byte{1, 2})
		w.BoolField("end", true)
		w.Text("groups")
		w.StartArray()
		w.Uint(0)
		w.Uint(63)
		w.End()
		w.End()
	})

	var (
		legacy, structured int64
		group              uint64
		name               string
		val                []byte
		end, endFound      bool
		groups             []uint64
		entered            int
	)
	fields := NewFieldMap().
		OnIn("ret", "rc", 2, SetInt(&structured)).
		OnIn("ret", "group", 2, SetUint(&group)).
		OnAt("rc", 1, SetInt(&legacy)).
		On("name", SetText(&name)).
		On("val", SetBytes(&val)).
		On("end", Found(&endFound, EventBool, SetBool(&end))).
		OnElement("groups", 2, func(_ Context, ev Event) {
			if v, ok := ev.AsUint(); ok {
				groups = append(groups, v)
			}
		}).
		OnEnter(func(Context, Event) { entered++ })

	if err := Walk(body, fields); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if legacy != 6 {
		t.Errorf("legacy rc = %d, want 6", legacy)
	}
	if structured != 3 || group != 8 {
		t.Errorf("structured = (%d, %d), want (8, 3)", group, structured)
	}
	if name != "fs" {
		t.Errorf("name = %q, want %q", name, "fs")
	}
	if !bytes.Equal(val, []byte{1, 2}) {
		t.Errorf("val = %x, want 0102", val)
	}
	if !end || !endFound {
		t.Errorf("end = %v (found %v), want true (found true)", end, endFound)
	}
	if !reflect.DeepEqual(groups, []uint64{0, 63}) {
		t.Errorf("groups = %v, want [0 63]", groups)
	}
	if entered != 3 {
		t.Errorf("entered = %d, want 3", entered)
	}
}

func TestFieldMapIgnoresWrongType(t *testing.T) {
	body := build(t, func(w *Writer) {
		w.StartMap()
		w.TextField("rc", "oops")
		w.End()
	})
	rc := int64(-1)
	found := false
	if err := Walk(body, NewFieldMap().On("rc", Found(&found, EventUint, SetInt(&rc)))); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if rc != -1 || found {
		t.Errorf("rc = %d (found %v), want untouched", rc, found)
	}
}
