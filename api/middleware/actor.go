package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/jewelpos-backend/api/responses"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

// StaffHeader carries the authenticated staff member. The gateway in front of
// the engine authenticates the session and sets it.
const StaffHeader = "X-Staff-Id"

// Actor rejects requests without a valid staff id and seeds the context with it.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(StaffHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff id missing"))
				return
			}
			staffID, err := uuid.Parse(raw)
			if err != nil || staffID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff id invalid"))
				return
			}

			ctx := WithStaffID(r.Context(), staffID)
			if logg != nil {
				ctx = logg.WithStaffID(ctx, staffID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
