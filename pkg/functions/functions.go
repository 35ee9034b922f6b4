// Package functions defines the contract between the query engine and the
// black-box functions it invokes, such as model inference calls. The engine
// never inspects a function's implementation; it only knows its signature,
// whether it is deterministic, and how to invoke it.
package functions

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/muninndb/muninn/pkg/record"
)

// Signature uniquely identifies a function version. Two functions with the
// same name but different definitions (implementation, configuration, model
// weights) must carry different version tokens. Signatures are the unit that
// both statistics and cached outputs are keyed on.
type Signature struct {
	Name    string
	Version string
}

// String returns the canonical "name@version" form of the signature.
func (s Signature) String() string { return s.Name + "@" + s.Version }

// Zero reports whether the signature is the zero value.
func (s Signature) Zero() bool { return s.Name == "" && s.Version == "" }

// Checksum derives a version token from the given definition parts, such as
// an implementation identifier and serialized configuration. The same parts
// always produce the same token.
func Checksum(parts ...string) string {
	h := xxhash.New()
	for _, part := range parts {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// Function is a callable registered with the engine. Implementations must be
// safe for concurrent invocation.
type Function interface {
	// Signature returns the identity of the function.
	Signature() Signature
	// Deterministic reports whether the function always returns the same
	// output for the same arguments. Only deterministic functions are
	// eligible for output caching.
	Deterministic() bool
	// Invoke calls the function with the given arguments.
	Invoke(ctx context.Context, args []record.Value) (record.Value, error)
}

// InvokeFunc is the type of a plain function body.
type InvokeFunc func(ctx context.Context, args []record.Value) (record.Value, error)

type funcAdapter struct {
	sig           Signature
	deterministic bool
	invoke        InvokeFunc
}

var _ Function = (*funcAdapter)(nil)

// New adapts a plain function body into a [Function] with the given name and
// version token.
func New(name, version string, deterministic bool, invoke InvokeFunc) Function {
	return &funcAdapter{
		sig:           Signature{Name: name, Version: version},
		deterministic: deterministic,
		invoke:        invoke,
	}
}

func (f *funcAdapter) Signature() Signature { return f.sig }

func (f *funcAdapter) Deterministic() bool { return f.deterministic }

func (f *funcAdapter) Invoke(ctx context.Context, args []record.Value) (record.Value, error) {
	return f.invoke(ctx, args)
}
