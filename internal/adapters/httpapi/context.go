package httpapi

import "context"

type subjectKey struct{}

// WithSubject records the authenticated staff subject on the request
// context. The auth middleware sets it from the verified token's sub claim.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the staff subject for the request, reporting
// false when the middleware never ran or the subject is empty.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}
