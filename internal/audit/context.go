package audit

import "context"

type provenanceContextKey struct{}

// ContextWithProvenance stores request origin details for audit attribution.
func ContextWithProvenance(ctx context.Context, prov Provenance) context.Context {
	return context.WithValue(ctx, provenanceContextKey{}, prov)
}

// ProvenanceFromContext extracts request origin details, zero when absent.
func ProvenanceFromContext(ctx context.Context) Provenance {
	prov, _ := ctx.Value(provenanceContextKey{}).(Provenance)
	return prov
}
