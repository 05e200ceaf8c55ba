package middleware

import (
	"context"

	"github.com/google/uuid"
)

type staffKey struct{}

// StaffIDFromContext returns the acting staff member set by Actor. The bool is
// false outside the /api/v1 tree.
func StaffIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(staffKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func WithStaffID(ctx context.Context, staffID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, staffKey{}, staffID)
}
