// Package cbor implements the structured-binary body codec used by SMP
// messages.
//
// SMP bodies are CBOR maps keyed by short text strings. Requests are built
// with a Writer, which emits indefinite-length containers in insertion order.
// Responses are consumed as a flat stream of typed events produced by a
// Reader, and almost every consumer goes through Walk, which tracks the
// pending key, the nesting depth and the key of the enclosing container.
//
// # Depth numbering
//
// The entries of the root container are at depth 1. A map found under key
// "images" at depth 1 has its own entries at depth 2, and so on:
//
//	{                       // root map
//	  "rc": 0,              // depth 1, parent ""
//	  "ret": {              // depth 1, parent ""
//	    "group": 8,         // depth 2, parent "ret"
//	    "rc": 3             // depth 2, parent "ret"
//	  }
//	}
//
// Inside an array no key is ever pending: every element is a value (or a
// container) whose parent is the key the array was found under.
//
// # Usage Example - Decoding
//
//	var rc int64
//	fields := cbor.NewFieldMap().
//	    OnAt("rc", 1, cbor.SetInt(&rc))
//	if err := cbor.Walk(body, fields); err != nil {
//	    return err
//	}
//
// # Usage Example - Encoding
//
//	var buf bytes.Buffer
//	w := cbor.NewWriter(&buf)
//	w.StartMap()
//	w.Text("d")
//	w.Text("hello")
//	w.End()
//	if err := w.Err(); err != nil {
//	    return err
//	}
//
// Generic decoding into Go values (for JSON output and diagnostics) is done
// by Decode and Diagnose.
package cbor
