package trace

import "context"

type ctxKey struct{}

// SpanContext identifies the span that new work should nest under.
type SpanContext struct {
	SpanID uint64
}

type ctxState struct {
	tracer Tracer
	span   SpanContext
}

func stateOf(ctx context.Context) ctxState {
	if ctx != nil {
		if st, ok := ctx.Value(ctxKey{}).(ctxState); ok {
			return st
		}
	}
	return ctxState{tracer: Nop}
}

// FromContext returns the tracer attached to ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return stateOf(ctx).tracer
}

// WithTracer attaches t to ctx, keeping the current span.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	st := stateOf(ctx)
	st.tracer = t
	if t == nil {
		st.tracer = Nop
	}
	return context.WithValue(ctx, ctxKey{}, st)
}

// CurrentSpan returns the span attached to ctx; the zero value means root.
func CurrentSpan(ctx context.Context) SpanContext {
	return stateOf(ctx).span
}

// WithSpanContext makes sc the parent for spans begun under ctx.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	st := stateOf(ctx)
	st.span = sc
	return context.WithValue(ctx, ctxKey{}, st)
}
