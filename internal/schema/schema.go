// Package schema defines the port the engine uses to validate task payloads.
//
// The engine never implements real validation itself — per the design this
// module follows, type-checking of user payloads is delegated to a host-provided
// validator (a JSON Schema engine, a protobuf descriptor, whatever the embedding
// application already has). What lives here is the narrow interface a
// pkg/flow Task's input and output schemas implement, plus a reflect-based reference
// implementation good enough for tests and for hosts that don't need anything
// fancier. The scheduler does not call these schemas: task payloads are not
// validated against them at run time.
package schema

import (
	"fmt"
	"reflect"
)

// Schema validates a raw payload and produces a normalized value of type T,
// or a validation error. Implementations are expected to be pure and cheap
// enough to call on every task attempt.
type Schema[T any] interface {
	// Validate checks payload against the schema and returns the normalized,
	// typed value. The error, if any, is safe to surface to callers directly.
	Validate(payload any) (T, error)

	// Describe returns a short, implementation-defined description of the
	// schema, used in compile error messages.
	Describe() string
}

// ValidationError is returned by a Schema when a payload does not conform.
type ValidationError struct {
	Schema string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed against schema %q: %s", e.Schema, e.Reason)
}

// Erased is the type-erased form of Schema used internally once the fluent
// builder has captured a Schema[T] at its generic call site. The compiler and
// scheduler only ever see Erased — generics exist purely for the public API's
// ergonomics.
type Erased struct {
	Type     reflect.Type
	validate func(payload any) (any, error)
	describe func() string
}

// Validate runs the erased validation function.
func (e Erased) Validate(payload any) (any, error) {
	return e.validate(payload)
}

// Describe returns the schema's description.
func (e Erased) Describe() string {
	if e.describe == nil {
		return e.Type.String()
	}
	return e.describe()
}

// Erase converts a typed Schema into its erased form, capturing T's
// reflect.Type so the compiler can perform pairwise type-compatibility checks
// between adjacent plan nodes without needing generic methods (which Go does
// not allow — a method cannot introduce new type parameters beyond its
// receiver's).
func Erase[T any](s Schema[T]) Erased {
	var zero T
	return Erased{
		Type: reflect.TypeOf(&zero).Elem(),
		validate: func(payload any) (any, error) {
			return s.Validate(payload)
		},
		describe: s.Describe,
	}
}

// reflectSchema is the reference Schema implementation: it accepts any
// payload that is already assignable to T (including the zero-cost case
// where the caller passes a T directly), and otherwise reports a
// ValidationError. It performs no structural validation — that is the
// host's job — only the type-compatibility check the engine itself relies on.
type reflectSchema[T any] struct {
	name string
}

// Reflect returns a reference Schema[T] implementation. It is sufficient for
// tests and for any host that already hands the engine well-typed Go values;
// hosts that accept untyped wire payloads (JSON, msgpack, …) are expected to
// provide their own Schema that does real structural validation before
// delegating here.
func Reflect[T any](name string) Schema[T] {
	return reflectSchema[T]{name: name}
}

func (r reflectSchema[T]) Validate(payload any) (T, error) {
	var zero T
	if payload == nil {
		// nil payload is only valid when T itself can hold nil
		// (pointer, interface, map, slice); reflect.Zero handles the rest.
		t := reflect.TypeOf(&zero).Elem()
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return zero, nil
		}
		return zero, &ValidationError{Schema: r.name, Reason: "payload is nil"}
	}

	if v, ok := payload.(T); ok {
		return v, nil
	}

	return zero, &ValidationError{
		Schema: r.name,
		Reason: fmt.Sprintf("payload of type %T is not assignable to %T", payload, zero),
	}
}

func (r reflectSchema[T]) Describe() string {
	var zero T
	return fmt.Sprintf("%s(%T)", r.name, zero)
}
