package kaitai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-kaitai/kstruct/pkg/kstruct"
	"github.com/go-kaitai/kstruct/pkg/schema"
)

// options collects everything any of CompileSchema/ParseWithSchema/Parse
// can be configured with. Most calls only ever set a few of these; unused
// fields stay zero.
type options struct {
	strict   bool
	validate bool
	rootType string
	logger   *slog.Logger
	emit     func(ParseEvent)
}

// Option configures Parse (and, via the CompileOption/ParseOption
// aliases, CompileSchema/ParseWithSchema individually).
type Option func(*options)

// CompileOption is the subset of Option that CompileSchema accepts.
type CompileOption = Option

// ParseOption is the subset of Option that ParseWithSchema accepts.
type ParseOption = Option

// WithStrict makes schema compilation reject unresolved type/enum
// references instead of leaving them for a parse-time failure.
func WithStrict() Option {
	return func(o *options) { o.strict = true }
}

// WithValidate sets the schema compiler's Validate option. Compilation does
// not act on it: `valid:` constraints are checked only while parsing.
func WithValidate(v bool) Option {
	return func(o *options) { o.validate = v }
}

// WithRootType parses starting from the named type instead of the
// schema's own top-level type.
func WithRootType(name string) Option {
	return func(o *options) { o.rootType = name }
}

// WithLogger overrides the field-level debug logger. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmitEvents registers a sink called with a ParseEvent at every field
// boundary, in depth-first order, plus a trailing Complete on success.
func WithEmitEvents(sink func(ParseEvent)) Option {
	return func(o *options) { o.emit = sink }
}

// CompileSchema lowers raw .ksy YAML source into an executable schema.
func CompileSchema(source []byte, opts ...CompileOption) (*schema.Compiled, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var compileOpts []schema.CompileOption
	if o.strict {
		compileOpts = append(compileOpts, schema.WithStrict())
	}
	if o.validate {
		compileOpts = append(compileOpts, schema.WithValidate(true))
	}
	return schema.Compile(source, compileOpts...)
}

// ParseWithSchema parses buf against an already-compiled schema.
func ParseWithSchema(compiled *schema.Compiled, buf []byte, opts ...ParseOption) (*kstruct.Object, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var ipOpts []kstruct.Option
	if o.logger != nil {
		ipOpts = append(ipOpts, kstruct.WithLogger(o.logger))
	}
	if o.emit != nil {
		ipOpts = append(ipOpts, kstruct.WithFieldHooks(
			func(path string, offset int64, fieldName string) {
				o.emit(FieldEnter{Path: path, Offset: offset, FieldName: fieldName})
			},
			func(path string, offset, size int64, fieldName string, value any) {
				o.emit(FieldExit{Path: path, Offset: offset, Size: size, FieldName: fieldName, Value: value})
			},
			func(path string, offset int64, err error) {
				o.emit(ParseError{Path: path, Offset: offset, Err: err})
			},
		))
	}

	ip, err := kstruct.NewInterpreter(compiled, ipOpts...)
	if err != nil {
		return nil, fmt.Errorf("kaitai: building interpreter: %w", err)
	}

	ctx := context.Background()
	var (
		root *kstruct.Object
	)
	if o.rootType != "" && o.rootType != compiled.RootTypeName {
		root, err = ip.ParseRootType(ctx, o.rootType, buf)
	} else {
		root, err = ip.ParseRoot(ctx, buf)
	}
	if err != nil {
		return nil, err
	}
	if o.emit != nil {
		o.emit(Complete{})
	}
	return root, nil
}

// Parse compiles source and parses buf against it in one call, equivalent
// to CompileSchema followed by ParseWithSchema. Option values recognized
// by CompileSchema and ParseWithSchema are both accepted; each is applied
// to the call it's relevant to.
func Parse(source []byte, buf []byte, opts ...Option) (*kstruct.Object, error) {
	compiled, err := CompileSchema(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("kaitai: compiling schema: %w", err)
	}
	return ParseWithSchema(compiled, buf, opts...)
}

// Parser wraps CompileSchema with a cache keyed by schema source text, for
// callers that repeatedly parse different buffers against the same
// handful of schemas.
type Parser struct {
	mu    sync.RWMutex
	cache map[string]*schema.Compiled
}

// NewParser returns an empty, ready-to-use Parser.
func NewParser() *Parser {
	return &Parser{cache: map[string]*schema.Compiled{}}
}

// CompileCached compiles source, reusing a prior compilation keyed by its
// exact byte content if one exists.
func (p *Parser) CompileCached(source []byte, opts ...CompileOption) (*schema.Compiled, error) {
	key := string(source)

	p.mu.RLock()
	if c, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return c, nil
	}
	p.mu.RUnlock()

	compiled, err := CompileSchema(source, opts...)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = compiled
	p.mu.Unlock()
	return compiled, nil
}

// ParseCached compiles (or reuses a cached compilation of) source, then
// parses buf against it.
func (p *Parser) ParseCached(source, buf []byte, opts ...Option) (*kstruct.Object, error) {
	compiled, err := p.CompileCached(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("kaitai: compiling schema: %w", err)
	}
	return ParseWithSchema(compiled, buf, opts...)
}

// ClearCache drops every cached compilation.
func (p *Parser) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = map[string]*schema.Compiled{}
}
