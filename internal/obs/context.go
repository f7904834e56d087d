package obs

import "context"

type routePatternKey struct{}

// WithRoutePattern stores the matched chi pattern on the context. Metrics
// and spans label by pattern, never the raw path: tracking URLs embed the
// tracking number and would explode label cardinality.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the stored pattern, or "".
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(routePatternKey{}).(string)
	return v
}
