package audit

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/godamri/helix-audit/pkg/contextx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Builder turns raw call data into Events. Resolution results are cached per
// (declared method, concrete type); apart from that the Builder holds no state.
type Builder struct {
	now            func() time.Time
	newID          func() string
	captureArgs    bool
	captureResults bool

	resolved sync.Map // resolveKey -> resolution
}

type BuilderOption func(*Builder)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides the uuid based event ID generator.
func WithIDGenerator(gen func() string) BuilderOption {
	return func(b *Builder) {
		if gen != nil {
			b.newID = gen
		}
	}
}

// WithCapture controls whether argument and result values are copied into
// events. The outcome (success or failure) is always recorded.
func WithCapture(arguments, results bool) BuilderOption {
	return func(b *Builder) {
		b.captureArgs = arguments
		b.captureResults = results
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		now:            time.Now,
		newID:          uuid.NewString,
		captureArgs:    true,
		captureResults: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type resolveKey struct {
	owner    reflect.Type
	name     string
	concrete reflect.Type
}

type resolution struct {
	target    TypeRef
	operation Operation
}

// Resolve determines the concrete target type and operation for a declared
// method. Interface-declared methods are looked up on target's runtime type;
// failure to do so is a *ResolutionError.
func (b *Builder) Resolve(d Declared, target any) (TypeRef, Operation, error) {
	r, err := b.resolve(d, target)
	if err != nil {
		return TypeRef{}, Operation{}, err
	}
	op := r.operation
	op.Params = slices.Clone(op.Params)
	return r.target, op, nil
}

func (b *Builder) resolve(d Declared, target any) (resolution, error) {
	if d.Owner == nil {
		r := resolution{operation: Operation{Name: d.Name, Params: d.params}}
		if target != nil {
			r.target = typeRefOf(reflect.TypeOf(target))
		}
		return r, nil
	}

	if target == nil {
		return resolution{}, &ResolutionError{Declared: d.String(), Target: "<nil>", Err: ErrNilTarget}
	}

	concrete := reflect.TypeOf(target)
	key := resolveKey{owner: d.Owner, name: d.Name, concrete: concrete}
	if cached, ok := b.resolved.Load(key); ok {
		return cached.(resolution), nil
	}

	fail := func(err error) (resolution, error) {
		return resolution{}, &ResolutionError{Declared: d.String(), Target: concrete.String(), Err: err}
	}

	if !isExported(d.Name) {
		return fail(ErrUnexported)
	}

	var r resolution
	if d.Owner.Kind() == reflect.Interface {
		declared, ok := d.Owner.MethodByName(d.Name)
		if !ok {
			return fail(ErrMethodNotFound)
		}
		// Only the target's own method set counts; a value whose methods
		// have pointer receivers does not implement the interface.
		impl, ok := concrete.MethodByName(d.Name)
		if !ok {
			return fail(ErrMethodNotFound)
		}
		if !sameParams(declared.Type, impl.Type) {
			return fail(ErrSignatureMismatch)
		}
		if !concrete.Implements(d.Owner) {
			return fail(ErrMethodNotFound)
		}
		r = resolution{
			target:    typeRefOf(concrete),
			operation: operationOf(d.Name, impl.Type, 1),
		}
	} else {
		if !sameBase(d.Owner, concrete) {
			return fail(ErrMethodNotFound)
		}
		m, ok := lookupMethod(d.Owner, d.Name)
		if !ok {
			return fail(ErrMethodNotFound)
		}
		r = resolution{
			target:    typeRefOf(concrete),
			operation: operationOf(d.Name, m.Type, 1),
		}
	}

	b.resolved.Store(key, r)
	return r, nil
}

// Build resolves call and assembles an Event for an invocation that has
// already completed. A non-nil failure makes the event a failure event and
// result is ignored.
func (b *Builder) Build(ctx context.Context, call Call, result any, failure error, elapsed time.Duration) (Event, error) {
	r, err := b.resolve(call.Declared, call.Target)
	if err != nil {
		return Event{}, err
	}
	return b.assemble(ctx, r, call.Args, result, failure, elapsed), nil
}

func (b *Builder) assemble(ctx context.Context, r resolution, args []any, result any, failure error, elapsed time.Duration) Event {
	e := Event{
		id:        b.newID(),
		timestamp: b.now(),
		duration:  elapsed,
		target:    r.target,
		operation: r.operation,
		failure:   failure,
	}

	if b.captureArgs {
		e.args = slices.Clone(args)
	}
	if failure == nil && b.captureResults {
		e.result = result
	}

	if ctx != nil {
		e.actorID = contextx.GetAuthPrincipalID(ctx)
		e.requestID = contextx.GetRequestID(ctx)
		e.traceID = traceIDFrom(ctx)
		e.metadata = metadataFrom(ctx)
	}

	return e
}

func traceIDFrom(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return contextx.GetTraceID(ctx)
}

func metadataFrom(ctx context.Context) map[string]string {
	md := map[string]string{}
	add := func(key, val string) {
		if val != "" {
			md[key] = val
		}
	}
	add("session_id", contextx.GetAuthSessionID(ctx))
	p := contextx.GetProvenance(ctx)
	add("source_service", p.SourceService)
	add("entry_point", p.EntryPoint)
	add("audit_reason", p.Reason)
	add("change_ticket", p.ChangeTicket)
	if len(md) == 0 {
		return nil
	}
	return md
}
