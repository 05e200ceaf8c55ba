package commissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
)

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expenseMirror interface {
	Project(ctx context.Context, input expenses.ProjectInput) (*models.Expense, error)
	Retract(ctx context.Context, input expenses.RetractInput) (*expenses.RetractResult, error)
	RecordFailure(ctx context.Context, input expenses.ProjectInput, cause error) error
}

// Service pays staff commission per (staff, period).
type Service interface {
	SummarizePeriod(ctx context.Context, staffID uuid.UUID, period Period, rate decimal.Decimal, basis enums.CommissionBasis) (*Summary, error)
	RecordPayment(ctx context.Context, actorID uuid.UUID, input RecordPaymentInput) (*PaymentResult, error)
	OutstandingForPeriod(ctx context.Context, input OutstandingInput) (*Outstanding, error)
	DeletePayment(ctx context.Context, actorID uuid.UUID, paymentID uuid.UUID) (*DeletePaymentResult, error)
	ListPayments(ctx context.Context, staffID uuid.UUID) ([]PaymentDTO, error)
}

// RecordPaymentInput pays commission for a period. Amount defaults to the
// commission computed from the period's sales.
type RecordPaymentInput struct {
	StaffID       uuid.UUID
	Period        Period
	Rate          decimal.Decimal
	Basis         enums.CommissionBasis
	Amount        *decimal.Decimal
	PaymentMethod enums.PaymentMethod
	PaidAt        time.Time
	Notes         *string
}

// OutstandingInput asks what is still owed for a period. When Computed is nil
// the commission is summarised from sales at Rate and Basis.
type OutstandingInput struct {
	StaffID  uuid.UUID
	Period   Period
	Computed *decimal.Decimal
	Rate     decimal.Decimal
	Basis    enums.CommissionBasis
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Mirror  expenseMirror
	Locker  locks.Locker
	Metrics *metrics.LedgerMetrics
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	mirror  expenseMirror
	locker  locks.Locker
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Mirror == nil {
		return nil, fmt.Errorf("expense mirror required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		mirror:  params.Mirror,
		locker:  params.Locker,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) SummarizePeriod(ctx context.Context, staffID uuid.UUID, period Period, rate decimal.Decimal, basis enums.CommissionBasis) (*Summary, error) {
	if err := validateTerms(staffID, period, rate, basis); err != nil {
		return nil, err
	}
	return s.summarize(ctx, s.repo, staffID, period, rate, basis)
}

func (s *service) summarize(ctx context.Context, r Repository, staffID uuid.UUID, period Period, rate decimal.Decimal, basis enums.CommissionBasis) (*Summary, error) {
	sales, err := r.ListSales(ctx, staffID, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list period sales")
	}
	summary := summarizeSales(sales, rate, basis)
	summary.StaffID = staffID
	summary.Period = period
	return &summary, nil
}

func (s *service) RecordPayment(ctx context.Context, actorID uuid.UUID, input RecordPaymentInput) (*PaymentResult, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if input.Basis == "" {
		input.Basis = enums.CommissionBasisRevenue
	}
	if err := validateTerms(input.StaffID, input.Period, input.Rate, input.Basis); err != nil {
		return nil, err
	}
	input.PaymentMethod = input.PaymentMethod.OrDefault()
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod)
	}
	if input.Amount != nil && !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission amount must be positive")
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	release, err := locks.Acquire(ctx, s.locker, locks.EntityCommission, input.StaffID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var (
		payment   *models.CommissionPayment
		summary   *Summary
		paidSoFar decimal.Decimal
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		var err error
		summary, err = s.summarize(ctx, txRepo, input.StaffID, input.Period, input.Rate, input.Basis)
		if err != nil {
			return err
		}

		amount := summary.Commission
		if input.Amount != nil {
			amount = input.Amount.Round(2)
		}
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "no commission due for this period; pass an explicit amount").
				WithDetails(map[string]any{"computed_commission": summary.Commission.StringFixed(2)})
		}

		prior, err := txRepo.ListOverlapping(ctx, input.StaffID, input.Period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission payments")
		}
		paidSoFar = sumPayments(prior).Add(amount)

		payment = &models.CommissionPayment{
			StaffID:          input.StaffID,
			PeriodStart:      input.Period.Start,
			PeriodEnd:        input.Period.End,
			SalesCount:       summary.SalesCount,
			RevenueTotal:     summary.Revenue,
			ProfitTotal:      summary.Profit,
			CommissionRate:   input.Rate.Round(2),
			CommissionBasis:  input.Basis,
			CommissionAmount: amount,
			PaymentMethod:    input.PaymentMethod,
			PaidAt:           paidAt.UTC().Truncate(time.Microsecond),
			Notes:            trimPtr(input.Notes),
			ActorID:          actorID,
		}
		if err := txRepo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert commission payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncPayout(string(enums.MirrorSourceCommission))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": payment.ID.String(),
		"staff_id":   payment.StaffID.String(),
		"period":     input.Period.Key(),
		"amount":     payment.CommissionAmount.StringFixed(2),
	})
	s.logg.Info(logCtx, "commission payment recorded")

	result := &PaymentResult{}
	if paidSoFar.GreaterThan(summary.Commission) {
		result.Warnings = append(result.Warnings, overpaidWarning(summary.Commission, paidSoFar))
	}

	projection := paymentProjection(payment, actorID)
	expense, err := s.mirror.Project(ctx, projection)
	if err != nil {
		if recErr := s.mirror.RecordFailure(ctx, projection, err); recErr != nil {
			s.logg.Error(logCtx, "record mirror failure", recErr)
		}
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodeMirrorProjectionFailed,
			"commission recorded but the expense entry could not be written; it will be retried"))
	} else {
		if err := s.repo.SetExpenseID(ctx, payment.ID, expense.ID); err != nil {
			s.logg.Warn(logCtx, "link commission payment to expense failed: "+err.Error())
		} else {
			payment.ExpenseID = &expense.ID
		}
	}
	result.Payment = *NewPaymentDTO(payment)
	return result, nil
}

func (s *service) OutstandingForPeriod(ctx context.Context, input OutstandingInput) (*Outstanding, error) {
	if input.StaffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staff id required")
	}
	if err := input.Period.Validate(); err != nil {
		return nil, err
	}
	if input.Basis == "" {
		input.Basis = enums.CommissionBasisRevenue
	}

	computed := decimal.Zero
	if input.Computed != nil {
		if input.Computed.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "computed commission cannot be negative")
		}
		computed = input.Computed.Round(2)
	} else {
		summary, err := s.SummarizePeriod(ctx, input.StaffID, input.Period, input.Rate, input.Basis)
		if err != nil {
			return nil, err
		}
		computed = summary.Commission
	}

	payments, err := s.repo.ListOverlapping(ctx, input.StaffID, input.Period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission payments")
	}
	paid := sumPayments(payments)
	out := &Outstanding{
		StaffID:     input.StaffID,
		Period:      input.Period,
		Computed:    computed,
		Paid:        paid,
		Outstanding: computed.Sub(paid),
		Payments:    newPaymentDTOs(payments),
	}
	if out.Outstanding.IsNegative() {
		out.Overpaid = true
		out.Warnings = append(out.Warnings, overpaidWarning(computed, paid))
	}
	return out, nil
}

func (s *service) DeletePayment(ctx context.Context, actorID uuid.UUID, paymentID uuid.UUID) (*DeletePaymentResult, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	existing, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission payment")
	}
	period := NewPeriod(existing.PeriodStart, existing.PeriodEnd)

	release, err := locks.Acquire(ctx, s.locker, locks.EntityCommission, existing.StaffID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	rows, err := s.repo.Delete(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete commission payment")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commission payment not found")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_id": existing.ID.String(),
		"staff_id":   existing.StaffID.String(),
		"period":     period.Key(),
	})
	s.logg.Info(logCtx, "commission payment deleted")

	result := &DeletePaymentResult{Payment: *NewPaymentDTO(existing)}
	retraction, err := s.mirror.Retract(ctx, expenses.RetractInput{
		SourceKind:          enums.MirrorSourceCommission,
		SourceID:            existing.ID,
		Category:            enums.ExpenseCategoryCommission,
		Amount:              existing.CommissionAmount,
		DescriptionFragment: period.Start.Format(isoDate),
	})
	if err != nil {
		s.logg.Error(logCtx, "retract mirrored expense", err)
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodeMirrorProjectionFailed,
			"payment deleted but its expense entry could not be removed"))
		return result, nil
	}
	result.Retraction = retraction
	if retraction.Ambiguous {
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodeAmbiguousRetraction,
			fmt.Sprintf("%d expense entries matched this payment; the oldest was removed", retraction.Candidates)))
	}
	return result, nil
}

func (s *service) ListPayments(ctx context.Context, staffID uuid.UUID) ([]PaymentDTO, error) {
	if staffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "staff id required")
	}
	rows, err := s.repo.ListByStaff(ctx, staffID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commission payments")
	}
	return newPaymentDTOs(rows), nil
}

// summarizeSales folds a period's sales. Revenue excludes tax; profit is
// revenue less the cost snapshot of every sold unit.
func summarizeSales(sales []models.Sale, rate decimal.Decimal, basis enums.CommissionBasis) Summary {
	revenue := decimal.Zero
	cost := decimal.Zero
	for _, sale := range sales {
		revenue = revenue.Add(sale.Total.Sub(sale.TaxAmount))
		for _, item := range sale.Items {
			if item.Voided {
				continue
			}
			cost = cost.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}
	profit := revenue.Sub(cost)

	base := revenue
	if basis == enums.CommissionBasisProfit {
		base = profit
	}
	commission := base.Mul(rate).Div(hundred).Round(2)
	if commission.IsNegative() {
		commission = decimal.Zero
	}
	return Summary{
		SalesCount: len(sales),
		Revenue:    revenue.Round(2),
		Profit:     profit.Round(2),
		Rate:       rate.Round(2),
		Basis:      basis,
		Commission: commission,
	}
}

func sumPayments(rows []models.CommissionPayment) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.CommissionAmount)
	}
	return total
}

func overpaidWarning(computed, paid decimal.Decimal) pkgerrors.Warning {
	return pkgerrors.NewWarning(pkgerrors.CodeOverpaid,
		fmt.Sprintf("payments of %s exceed the computed commission of %s", paid.StringFixed(2), computed.StringFixed(2)))
}

func paymentProjection(p *models.CommissionPayment, actorID uuid.UUID) expenses.ProjectInput {
	return expenses.ProjectInput{
		SourceKind: enums.MirrorSourceCommission,
		SourceID:   p.ID,
		Category:   enums.ExpenseCategoryCommission,
		Amount:     p.CommissionAmount,
		Description: fmt.Sprintf("Commission - staff %s - %s to %s",
			p.StaffID.String(), p.PeriodStart.UTC().Format(isoDate), p.PeriodEnd.UTC().Format(isoDate)),
		PaymentMethod: p.PaymentMethod,
		ExpenseDate:   p.PaidAt,
		ActorID:       actorID,
	}
}

func validateTerms(staffID uuid.UUID, period Period, rate decimal.Decimal, basis enums.CommissionBasis) error {
	if staffID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "staff id required")
	}
	if err := period.Validate(); err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be between 0 and 100")
	}
	if !basis.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid commission basis %q", basis)
	}
	return nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
