package shared

import (
	"context"

	"github.com/google/uuid"
)

type subjectContextKey struct{}

// ContextWithSubject stores the authenticated principal id in context.
func ContextWithSubject(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, id)
}

// SubjectFromContext extracts the authenticated principal id from context.
func SubjectFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(subjectContextKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
