package controllers

import (
	"net/http"

	"github.com/angelmondragon/jewelpos-backend/api/responses"
	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

// ExpensesBySource lists the mirrored expenses of one settlement or commission payment.
func ExpensesBySource(svc expenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := enums.ParseMirrorSource(r.URL.Query().Get("source_kind"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source_kind"))
			return
		}
		sourceID, err := uuidQuery(r, "source_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListBySource(r.Context(), kind, sourceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, expenses.NewExpenseDTOs(rows))
	}
}
