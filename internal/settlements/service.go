package settlements

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

// Ageing policy for open settlements.
const (
	OverdueAfter       = 30 * 24 * time.Hour
	ExpiringSoonWindow = 30 * 24 * time.Hour
)

const isoDate = "2006-01-02"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expenseMirror interface {
	Project(ctx context.Context, input expenses.ProjectInput) (*models.Expense, error)
	Retract(ctx context.Context, input expenses.RetractInput) (*expenses.RetractResult, error)
	RecordFailure(ctx context.Context, input expenses.ProjectInput, cause error) error
}

// Service tracks what is owed to consignors and trade-in customers.
type Service interface {
	OnSale(ctx context.Context, input OnSaleInput) (*SettlementDTO, error)
	// OnSaleTx opens the settlement inside the sale's transaction. It returns
	// nil for owned products.
	OnSaleTx(ctx context.Context, tx *gorm.DB, input OnSaleInput) (*models.Settlement, error)
	RecordPayout(ctx context.Context, actorID uuid.UUID, input RecordPayoutInput) (*PayoutResult, error)
	DeletePayout(ctx context.Context, actorID uuid.UUID, settlementID uuid.UUID) (*DeletePayoutResult, error)
	ListUnsettled(ctx context.Context, supplierID *uuid.UUID) ([]UnsettledSettlement, error)
	Get(ctx context.Context, settlementID uuid.UUID) (*SettlementDTO, error)
	HasOpenSettlement(ctx context.Context, productID uuid.UUID) (bool, error)

	// CancelForSaleTx cancels every open settlement of a voided sale and
	// returns the ones already paid out, which are left untouched.
	CancelForSaleTx(ctx context.Context, tx *gorm.DB, saleID uuid.UUID) (cancelled int64, settled []models.Settlement, err error)
	UpdateSalePriceTx(ctx context.Context, tx *gorm.DB, saleItemID uuid.UUID, price decimal.Decimal) (int64, error)
}

// OnSaleInput opens a settlement for one sale line.
type OnSaleInput struct {
	ProductID   uuid.UUID
	SaleID      uuid.UUID
	SaleItemID  *uuid.UUID
	SalePrice   decimal.Decimal
	AgreedPrice *decimal.Decimal
	SoldAt      time.Time
}

// RecordPayoutInput is the money handed to the consignor or customer.
type RecordPayoutInput struct {
	SettlementID  uuid.UUID
	Amount        decimal.Decimal
	PaidAt        time.Time
	PaymentMethod enums.PaymentMethod
	Notes         *string
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
	now     func() time.Time
}

// NewService wires the settlement engine. Locker and Metrics are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
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
		now:     time.Now,
	}, nil
}

func (s *service) OnSale(ctx context.Context, input OnSaleInput) (*SettlementDTO, error) {
	var created *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.OnSaleTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return NewSettlementDTO(created), nil
}

func (s *service) OnSaleTx(ctx context.Context, tx *gorm.DB, input OnSaleInput) (*models.Settlement, error) {
	if input.ProductID == uuid.Nil || input.SaleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and sale id required")
	}
	if input.SalePrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale price cannot be negative")
	}
	if input.AgreedPrice != nil && input.AgreedPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agreed price cannot be negative")
	}

	txRepo := s.repo.WithTx(tx)
	product, err := txRepo.FindProduct(ctx, input.ProductID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Provenance.RequiresSettlement() {
		return nil, nil
	}

	voided, err := txRepo.SaleVoided(ctx, input.SaleID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	if voided {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale is voided")
	}

	open, err := txRepo.FindOpenByProduct(ctx, input.ProductID)
	switch {
	case err == nil:
		if open.SaleID == input.SaleID {
			return open, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySettled, "product already has an unsettled sale").
			WithDetails(map[string]any{
				"settlement_id": open.ID.String(),
				"sale_id":       open.SaleID.String(),
			})
	case !repo.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open settlement")
	}

	agreed := input.AgreedPrice
	if agreed == nil {
		agreed = product.AgreedPrice
	}
	soldAt := input.SoldAt
	if soldAt.IsZero() {
		soldAt = s.now()
	}

	settlement := &models.Settlement{
		ProductID:          product.ID,
		SupplierID:         product.SupplierID,
		SaleID:             input.SaleID,
		SaleItemID:         input.SaleItemID,
		Provenance:         product.Provenance,
		Status:             enums.SettlementStatusSoldUnsettled,
		SalePrice:          input.SalePrice.Round(2),
		AgreedPrice:        roundPtr(agreed),
		SoldAt:             soldAt.UTC(),
		ConsignmentEndDate: product.ConsignmentEndDate,
	}
	if err := txRepo.Create(ctx, settlement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert settlement")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"settlement_id": settlement.ID.String(),
		"product_id":    settlement.ProductID.String(),
		"sale_id":       settlement.SaleID.String(),
		"provenance":    settlement.Provenance,
	})
	s.logg.Info(logCtx, "settlement opened")
	return settlement, nil
}

func (s *service) RecordPayout(ctx context.Context, actorID uuid.UUID, input RecordPayoutInput) (*PayoutResult, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if input.SettlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if input.PaidAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paid at required")
	}
	input.PaymentMethod = input.PaymentMethod.OrDefault()
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid payment method %q", input.PaymentMethod)
	}
	amount := input.Amount.Round(2)
	paidAt := input.PaidAt.UTC().Truncate(time.Microsecond)

	release, err := locks.Acquire(ctx, s.locker, locks.EntitySettlement, input.SettlementID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var (
		settled  *models.Settlement
		product  *models.Product
		replayed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := s.loadForUpdate(ctx, txRepo, input.SettlementID)
		if err != nil {
			return err
		}

		switch current.Status {
		case enums.SettlementStatusSettled:
			if samePayout(current, amount, paidAt) {
				settled = current
				replayed = true
				return nil
			}
			return alreadySettled(current)
		case enums.SettlementStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement was cancelled")
		}

		voided, err := txRepo.SaleVoided(ctx, current.SaleID)
		if err != nil && !repo.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if voided {
			return pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale behind this settlement is voided")
		}

		rows, err := txRepo.MarkSettled(ctx, current.ID, PayoutFields{
			Amount:        amount,
			PaymentMethod: input.PaymentMethod,
			PaidAt:        paidAt,
			Notes:         trimPtr(input.Notes),
			SettledBy:     actorID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
		}
		if rows == 0 {
			latest, err := txRepo.FindByID(ctx, current.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlement")
			}
			return alreadySettled(latest)
		}

		settled, err = txRepo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlement")
		}
		product, err = txRepo.FindProduct(ctx, current.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &PayoutResult{Settlement: *NewSettlementDTO(settled), Replayed: replayed}
	if replayed {
		return result, nil
	}

	s.metrics.IncPayout(string(enums.MirrorSourceSettlement))
	logCtx := s.logg.WithSettlementID(ctx, settled.ID.String())
	logCtx = s.logg.WithProductID(logCtx, settled.ProductID.String())
	logCtx = s.logg.WithAmount(logCtx, "amount", amount)
	s.logg.Info(logCtx, "settlement payout recorded")

	if settled.AgreedPrice != nil && !settled.AgreedPrice.Equal(amount) {
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodePayoutDivergence,
			fmt.Sprintf("payout %s differs from agreed price %s", amount.StringFixed(2), settled.AgreedPrice.StringFixed(2))))
	}

	projection := payoutProjection(settled, product, actorID)
	expense, err := s.mirror.Project(ctx, projection)
	if err != nil {
		if recErr := s.mirror.RecordFailure(ctx, projection, err); recErr != nil {
			s.logg.Error(logCtx, "record mirror failure", recErr)
		}
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodeMirrorProjectionFailed,
			"payout recorded but the expense entry could not be written; it will be retried"))
		return result, nil
	}
	result.ExpenseID = &expense.ID
	return result, nil
}

func (s *service) DeletePayout(ctx context.Context, actorID uuid.UUID, settlementID uuid.UUID) (*DeletePayoutResult, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}

	release, err := locks.Acquire(ctx, s.locker, locks.EntitySettlement, settlementID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var (
		before   models.Settlement
		reopened *models.Settlement
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := s.loadForUpdate(ctx, txRepo, settlementID)
		if err != nil {
			return err
		}
		if current.Status != enums.SettlementStatusSettled || current.PayoutAmount == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement has no recorded payout").
				WithDetails(map[string]any{"status": current.Status})
		}
		before = *current

		to := enums.SettlementStatusSoldUnsettled
		voided, err := txRepo.SaleVoided(ctx, current.SaleID)
		if err != nil && !repo.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if voided {
			to = enums.SettlementStatusCancelled
		} else {
			open, err := txRepo.FindOpenByProduct(ctx, current.ProductID)
			if err == nil && open.ID != current.ID {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "product already has another unsettled sale").
					WithDetails(map[string]any{"settlement_id": open.ID.String()})
			}
			if err != nil && !repo.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open settlement")
			}
		}

		rows, err := txRepo.Reopen(ctx, current.ID, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen settlement")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "settlement changed concurrently")
		}
		reopened, err = txRepo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithField(s.logg.WithSettlementID(ctx, reopened.ID.String()), "status", reopened.Status)
	s.logg.Info(logCtx, "settlement payout deleted")

	result := &DeletePayoutResult{Settlement: *NewSettlementDTO(reopened)}
	retraction, err := s.mirror.Retract(ctx, expenses.RetractInput{
		SourceKind:          enums.MirrorSourceSettlement,
		SourceID:            before.ID,
		Category:            before.Provenance.PayoutCategory(),
		Amount:              *before.PayoutAmount,
		DescriptionFragment: before.SoldAt.UTC().Format(isoDate),
	})
	if err != nil {
		s.logg.Error(logCtx, "retract mirrored expense", err)
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodeMirrorProjectionFailed,
			"payout deleted but its expense entry could not be removed"))
		return result, nil
	}
	result.Retraction = retraction
	if retraction.Ambiguous {
		result.Warnings = append(result.Warnings, pkgerrors.NewWarning(pkgerrors.CodeAmbiguousRetraction,
			fmt.Sprintf("%d expense entries matched this payout; the oldest was removed", retraction.Candidates)))
	}
	return result, nil
}

func (s *service) ListUnsettled(ctx context.Context, supplierID *uuid.UUID) ([]UnsettledSettlement, error) {
	rows, err := s.repo.ListOpen(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled settlements")
	}
	now := s.now().UTC()
	out := make([]UnsettledSettlement, 0, len(rows))
	for i := range rows {
		out = append(out, ageSettlement(&rows[i], now))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, settlementID uuid.UUID) (*SettlementDTO, error) {
	if settlementID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	row, err := s.repo.FindByID(ctx, settlementID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return NewSettlementDTO(row), nil
}

func (s *service) HasOpenSettlement(ctx context.Context, productID uuid.UUID) (bool, error) {
	_, err := s.repo.FindOpenByProduct(ctx, productID)
	if err == nil {
		return true, nil
	}
	if repo.IsNotFound(err) {
		return false, nil
	}
	return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open settlement")
}

func (s *service) CancelForSaleTx(ctx context.Context, tx *gorm.DB, saleID uuid.UUID) (int64, []models.Settlement, error) {
	txRepo := s.repo.WithTx(tx)
	cancelled, err := txRepo.CancelOpenForSale(ctx, saleID)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel settlements")
	}
	rows, err := txRepo.ListBySale(ctx, saleID)
	if err != nil {
		return 0, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sale settlements")
	}
	var settled []models.Settlement
	for _, row := range rows {
		if row.Status == enums.SettlementStatusSettled {
			settled = append(settled, row)
		}
	}
	return cancelled, settled, nil
}

func (s *service) UpdateSalePriceTx(ctx context.Context, tx *gorm.DB, saleItemID uuid.UUID, price decimal.Decimal) (int64, error) {
	if price.IsNegative() {
		price = decimal.Zero
	}
	rows, err := s.repo.WithTx(tx).UpdateOpenSalePrice(ctx, saleItemID, price.Round(2))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement sale price")
	}
	return rows, nil
}

func (s *service) loadForUpdate(ctx context.Context, r Repository, id uuid.UUID) (*models.Settlement, error) {
	row, err := r.FindByIDForUpdate(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
	}
	return row, nil
}

func ageSettlement(row *models.Settlement, now time.Time) UnsettledSettlement {
	age := now.Sub(row.SoldAt)
	out := UnsettledSettlement{
		SettlementDTO:   *NewSettlementDTO(row),
		DaysOutstanding: int(age / (24 * time.Hour)),
		Overdue:         age > OverdueAfter,
	}
	if row.Provenance == enums.ProvenanceConsignment && row.ConsignmentEndDate != nil {
		end := row.ConsignmentEndDate.UTC()
		if end.Before(now) {
			out.Expired = true
		} else if end.Sub(now) <= ExpiringSoonWindow {
			out.ExpiringSoon = true
		}
	}
	return out
}

func samePayout(s *models.Settlement, amount decimal.Decimal, paidAt time.Time) bool {
	if s.PayoutAmount == nil || s.PaidAt == nil {
		return false
	}
	return s.PayoutAmount.Equal(amount) && s.PaidAt.UTC().Equal(paidAt)
}

func alreadySettled(s *models.Settlement) error {
	details := map[string]any{"settlement_id": s.ID.String()}
	if s.PayoutAmount != nil {
		details["payout_amount"] = s.PayoutAmount.StringFixed(2)
	}
	if s.PaidAt != nil {
		details["paid_at"] = s.PaidAt.UTC().Format(time.RFC3339)
	}
	return pkgerrors.New(pkgerrors.CodeAlreadySettled, "settlement already paid out; delete the payout to correct it").
		WithDetails(details)
}

func payoutProjection(s *models.Settlement, product *models.Product, actorID uuid.UUID) expenses.ProjectInput {
	label := "Consignment payout"
	if s.Provenance == enums.ProvenanceTradeIn {
		label = "Trade-in payout"
	}
	name := s.ProductID.String()
	if product != nil {
		name = product.SKU + " " + product.Name
	}
	method := enums.DefaultPaymentMethod
	if s.PaymentMethod != nil {
		method = *s.PaymentMethod
	}
	paidAt := s.SoldAt
	if s.PaidAt != nil {
		paidAt = *s.PaidAt
	}
	return expenses.ProjectInput{
		SourceKind:    enums.MirrorSourceSettlement,
		SourceID:      s.ID,
		Category:      s.Provenance.PayoutCategory(),
		Amount:        *s.PayoutAmount,
		Description:   fmt.Sprintf("%s - %s - sold %s", label, name, s.SoldAt.UTC().Format(isoDate)),
		PaymentMethod: method,
		ExpenseDate:   paidAt,
		ActorID:       actorID,
	}
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(2)
	return &r
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
