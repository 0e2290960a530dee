// Package kaitai is the external entry point for compiling Kaitai Struct
// schemas and parsing binary data against them.
//
// # Quick Start
//
//	schemaSrc := []byte(`
//	meta:
//	  id: gif_header
//	  endian: le
//	seq:
//	  - id: magic
//	    contents: "GIF89a"
//	  - id: width
//	    type: u2
//	  - id: height
//	    type: u2
//	`)
//
//	root, err := kaitai.Parse(schemaSrc, fileBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(root.RawValue("width"))
//
// # Reusing a Compiled Schema
//
// Compile once, parse many buffers against it:
//
//	compiled, err := kaitai.CompileSchema(schemaSrc, kaitai.WithStrict())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, buf := range buffers {
//	    root, err := kaitai.ParseWithSchema(compiled, buf)
//	    ...
//	}
//
// A Parser caches compiled schemas by their exact source bytes, useful
// when the schema source itself is read repeatedly (e.g. from a request
// handler):
//
//	p := kaitai.NewParser()
//	root, err := p.ParseCached(schemaSrc, buf)
//
// # Observing a Parse
//
// WithEmitEvents streams field-level events as the parse happens, in
// depth-first order, ending with a Complete on success:
//
//	root, err := kaitai.Parse(schemaSrc, buf, kaitai.WithEmitEvents(func(ev kaitai.ParseEvent) {
//	    switch e := ev.(type) {
//	    case kaitai.FieldEnter:
//	        log.Printf("-> %s @ %d", e.Path, e.Offset)
//	    case kaitai.FieldExit:
//	        log.Printf("<- %s = %v", e.Path, e.Value)
//	    case kaitai.ParseError:
//	        log.Printf("!! %s: %v", e.Path, e.Err)
//	    }
//	}))
//
// # Expression REPL
//
// EvaluateAgainst runs an ad hoc expression against an already-parsed
// tree, the same expression language a schema's own if/value/valid
// bodies use — handy for an interactive debugger over a parsed file:
//
//	v, err := kaitai.EvaluateAgainst(root, "width * height")
package kaitai
