package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/jewelpos-backend/api/responses"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. Ledger writes run in
// transactions, so a panic mid-sale has already rolled back.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic").
					WithDetails(map[string]any{"method": r.Method, "path": r.URL.Path}))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
