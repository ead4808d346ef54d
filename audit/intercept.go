package audit

import (
	"context"
	"runtime/debug"
	"time"
)

// Intercept runs fn as an audited call. The operation is resolved before fn
// runs; a resolution failure is returned as *ResolutionError and fn is not
// invoked. Otherwise fn's result and error are returned unchanged, and a panic
// in fn is re-raised with the original value after the event is dispatched.
func Intercept[R any](ctx context.Context, a *Auditor, call Call, fn func(context.Context) (R, error)) (R, error) {
	return intercept(ctx, a, call, false, fn)
}

// InterceptErr is Intercept for calls that only return an error. Successful
// events carry a nil result.
func InterceptErr(ctx context.Context, a *Auditor, call Call, fn func(context.Context) error) error {
	_, err := intercept(ctx, a, call, true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// InterceptContext is Intercept using the Auditor carried by ctx.
func InterceptContext[R any](ctx context.Context, call Call, fn func(context.Context) (R, error)) (R, error) {
	return intercept(ctx, FromContext(ctx), call, false, fn)
}

func intercept[R any](ctx context.Context, a *Auditor, call Call, void bool, fn func(context.Context) (R, error)) (result R, err error) {
	if a == nil {
		return fn(ctx)
	}

	r, rerr := a.builder.resolve(call.Declared, call.Target)
	if rerr != nil {
		a.logger.Error("Audited call rejected", "declared", call.Declared.String(), "error", rerr)
		var zero R
		return zero, rerr
	}

	start := time.Now()
	completed := false
	defer func() {
		if completed {
			return
		}
		rec := recover()
		if rec == nil {
			// runtime.Goexit: record the abort and let it continue unwinding.
			a.emit(ctx, r, call.Args, nil, ErrAborted, time.Since(start))
			return
		}
		a.emit(ctx, r, call.Args, nil, &PanicError{Value: rec, Stack: debug.Stack()}, time.Since(start))
		panic(rec)
	}()

	result, err = fn(ctx)
	completed = true

	var recorded any
	if !void {
		recorded = result
	}
	a.emit(ctx, r, call.Args, recorded, err, time.Since(start))
	return result, err
}
