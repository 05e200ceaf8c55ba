package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/jewelpos-backend/api/responses"
	"github.com/angelmondragon/jewelpos-backend/api/validators"
	"github.com/angelmondragon/jewelpos-backend/internal/commissions"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

// commissionQuery reads staff_id, start, end, rate and basis from the query string.
type commissionQuery struct {
	staffID uuid.UUID
	period  commissions.Period
	rate    decimal.Decimal
	basis   enums.CommissionBasis
}

func parseCommissionQuery(r *http.Request) (commissionQuery, error) {
	staffID, err := validators.ParseQueryUUID(r, "staff_id")
	if err != nil {
		return commissionQuery{}, err
	}
	if staffID == nil {
		return commissionQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "staff_id is required")
	}
	q := r.URL.Query()
	period, err := commissions.ParsePeriod(q.Get("start"), q.Get("end"))
	if err != nil {
		return commissionQuery{}, err
	}
	rate, err := validators.ParseQueryDecimal(r, "rate", decimal.Zero)
	if err != nil {
		return commissionQuery{}, err
	}
	basis, err := parseBasis(q.Get("basis"))
	if err != nil {
		return commissionQuery{}, err
	}
	return commissionQuery{staffID: *staffID, period: period, rate: rate, basis: basis}, nil
}

func parseBasis(raw string) (enums.CommissionBasis, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return enums.CommissionBasisRevenue, nil
	}
	basis, err := enums.ParseCommissionBasis(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid basis")
	}
	return basis, nil
}

func CommissionSummary(svc commissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseCommissionQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.SummarizePeriod(r.Context(), q.staffID, q.period, q.rate, q.basis)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CommissionOutstanding takes an optional ?computed= override; otherwise the
// commission is computed from rate and basis.
func CommissionOutstanding(svc commissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseCommissionQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := commissions.OutstandingInput{StaffID: q.staffID, Period: q.period, Rate: q.rate, Basis: q.basis}
		if raw := strings.TrimSpace(r.URL.Query().Get("computed")); raw != "" {
			computed, err := validators.ParseQueryDecimal(r, "computed", decimal.Zero)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Computed = &computed
		}
		out, err := svc.OutstandingForPeriod(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteResult(w, http.StatusOK, out, out.Warnings)
	}
}

type recordCommissionRequest struct {
	StaffID       string           `json:"staff_id" validate:"required,uuid"`
	PeriodStart   string           `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd     string           `json:"period_end" validate:"required,datetime=2006-01-02"`
	Rate          decimal.Decimal  `json:"rate" validate:"money"`
	Basis         string           `json:"basis"`
	Amount        *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,money"`
	PaymentMethod string           `json:"payment_method"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	Notes         *string          `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func RecordCommissionPayment(svc commissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload recordCommissionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		staffID, err := uuid.Parse(payload.StaffID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid staff_id"))
			return
		}
		period, err := commissions.ParsePeriod(payload.PeriodStart, payload.PeriodEnd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		basis, err := parseBasis(payload.Basis)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := commissions.RecordPaymentInput{
			StaffID: staffID,
			Period:  period,
			Rate:    payload.Rate,
			Basis:   basis,
			Amount:  payload.Amount,
			PaidAt:  time.Now().UTC(),
			Notes:   payload.Notes,
		}
		if payload.PaidAt != nil {
			input.PaidAt = *payload.PaidAt
		}
		if method := strings.TrimSpace(payload.PaymentMethod); method != "" {
			parsed, err := enums.ParsePaymentMethod(method)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method"))
				return
			}
			input.PaymentMethod = parsed
		}
		result, err := svc.RecordPayment(r.Context(), actorID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteResult(w, http.StatusCreated, result.Payment, result.Warnings)
	}
}

func DeleteCommissionPayment(svc commissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuidParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeletePayment(r.Context(), actorID, paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteResult(w, http.StatusOK, result, result.Warnings)
	}
}

func ListCommissionPayments(svc commissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := validators.ParseQueryUUID(r, "staff_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if staffID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "staff_id is required"))
			return
		}
		rows, err := svc.ListPayments(r.Context(), *staffID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
