package audit

import (
	"go/token"
	"path"
	"reflect"
	"strings"
)

// TypeRef identifies a Go type by import path and name.
type TypeRef struct {
	PkgPath string
	Name    string
}

func (t TypeRef) String() string {
	if t.PkgPath == "" {
		return t.Name
	}
	return path.Base(t.PkgPath) + "." + t.Name
}

// IsZero reports whether the ref names no type (free functions).
func (t TypeRef) IsZero() bool {
	return t.PkgPath == "" && t.Name == ""
}

func typeRefOf(t reflect.Type) TypeRef {
	if t == nil {
		return TypeRef{}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return TypeRef{PkgPath: t.PkgPath(), Name: name}
}

// Operation identifies an invoked method: its name and parameter types in order.
type Operation struct {
	Name   string
	Params []string
}

func (o Operation) String() string {
	return o.Name + "(" + strings.Join(o.Params, ", ") + ")"
}

// Declared is the method identity as seen at the call site. Owner may be an
// interface type, a concrete type, or nil for free functions.
type Declared struct {
	Owner  reflect.Type
	Name   string
	params []string
}

func (d Declared) String() string {
	if d.Owner == nil {
		return d.Name
	}
	return typeRefOf(d.Owner).String() + "." + d.Name
}

// Call describes one marked invocation before it runs.
type Call struct {
	Declared Declared
	Target   any
	Args     []any
}

// On marks a call to method on target as declared by T. When T is an
// interface the concrete method is looked up on target's runtime type.
//
//	call := audit.On[bank.Account](acct, "Withdraw", 100)
func On[T any](target any, method string, args ...any) Call {
	return Call{
		Declared: Declared{Owner: reflect.TypeFor[T](), Name: method},
		Target:   target,
		Args:     args,
	}
}

// Func marks a call to a function without a receiver. Parameter types are
// taken from the dynamic types of args.
func Func(name string, args ...any) Call {
	params := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			params[i] = "nil"
			continue
		}
		params[i] = reflect.TypeOf(a).String()
	}
	return Call{
		Declared: Declared{Name: name, params: params},
		Args:     args,
	}
}

func operationOf(name string, fn reflect.Type, skip int) Operation {
	n := fn.NumIn()
	params := make([]string, 0, n-skip)
	for i := skip; i < n; i++ {
		in := fn.In(i)
		if fn.IsVariadic() && i == n-1 {
			params = append(params, "..."+in.Elem().String())
			continue
		}
		params = append(params, in.String())
	}
	return Operation{Name: name, Params: params}
}

func sameParams(declared, concrete reflect.Type) bool {
	// concrete carries the receiver as its first input.
	if declared.NumIn() != concrete.NumIn()-1 || declared.IsVariadic() != concrete.IsVariadic() {
		return false
	}
	for i := 0; i < declared.NumIn(); i++ {
		if declared.In(i) != concrete.In(i+1) {
			return false
		}
	}
	return true
}

// lookupMethod finds name on t, trying the pointer type for methods with
// pointer receivers.
func lookupMethod(t reflect.Type, name string) (reflect.Method, bool) {
	if m, ok := t.MethodByName(name); ok {
		return m, true
	}
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
		return reflect.PointerTo(t).MethodByName(name)
	}
	return reflect.Method{}, false
}

// sameBase reports whether a and b are the same type once pointers are
// stripped, so T and *T match each other and nothing else.
func sameBase(a, b reflect.Type) bool {
	for a.Kind() == reflect.Pointer {
		a = a.Elem()
	}
	for b.Kind() == reflect.Pointer {
		b = b.Elem()
	}
	return a == b
}

func isExported(name string) bool {
	return token.IsExported(name)
}
