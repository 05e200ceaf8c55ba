package settlements

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/expenses"
	"github.com/angelmondragon/jewelpos-backend/pkg/db"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/dbtest"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

type fakeMirror struct {
	projectFn       func(ctx context.Context, input expenses.ProjectInput) (*models.Expense, error)
	retractFn       func(ctx context.Context, input expenses.RetractInput) (*expenses.RetractResult, error)
	recordFailureFn func(ctx context.Context, input expenses.ProjectInput, cause error) error
}

func (f fakeMirror) Project(ctx context.Context, input expenses.ProjectInput) (*models.Expense, error) {
	return f.projectFn(ctx, input)
}

func (f fakeMirror) Retract(ctx context.Context, input expenses.RetractInput) (*expenses.RetractResult, error) {
	return f.retractFn(ctx, input)
}

func (f fakeMirror) RecordFailure(ctx context.Context, input expenses.ProjectInput, cause error) error {
	return f.recordFailureFn(ctx, input, cause)
}

type fixture struct {
	svc    Service
	conn   *gorm.DB
	client *db.Client
}

func newFixture(t *testing.T, mirror expenseMirror) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if mirror == nil {
		mirrorSvc, err := expenses.NewService(expenses.NewRepository(conn), client, nil, logg)
		require.NoError(t, err)
		mirror = mirrorSvc
	}
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Tx:     client,
		Mirror: mirror,
		Locker: locks.NewMemoryLocker(),
		Logger: logg,
	})
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, client: client}
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (f fixture) product(t *testing.T, provenance enums.Provenance, agreed *decimal.Decimal, end *time.Time) models.Product {
	t.Helper()
	p := models.Product{
		SKU:                "SKU-" + uuid.NewString()[:8],
		Name:               "Diamond ring",
		Provenance:         provenance,
		AgreedPrice:        agreed,
		ConsignmentEndDate: end,
	}
	if provenance.RequiresSettlement() {
		supplier := uuid.New()
		p.SupplierID = &supplier
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

func (f fixture) sale(t *testing.T, soldAt time.Time) models.Sale {
	t.Helper()
	s := models.Sale{StaffID: uuid.New(), SoldAt: soldAt}
	require.NoError(t, f.conn.Create(&s).Error)
	return s
}

func (f fixture) openSettlement(t *testing.T, agreed string) *SettlementDTO {
	t.Helper()
	a := money(agreed)
	p := f.product(t, enums.ProvenanceConsignment, &a, nil)
	sale := f.sale(t, time.Date(2026, 9, 14, 15, 0, 0, 0, time.UTC))
	got, err := f.svc.OnSale(context.Background(), OnSaleInput{
		ProductID: p.ID,
		SaleID:    sale.ID,
		SalePrice: money("500.00"),
		SoldAt:    sale.SoldAt,
	})
	require.NoError(t, err)
	return got
}

func TestOnSale_OpensSettlementForConsignment(t *testing.T) {
	f := newFixture(t, nil)
	agreed := money("300.00")
	p := f.product(t, enums.ProvenanceConsignment, &agreed, nil)
	sale := f.sale(t, time.Now().UTC())

	got, err := f.svc.OnSale(context.Background(), OnSaleInput{ProductID: p.ID, SaleID: sale.ID, SalePrice: money("500")})
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusSoldUnsettled, got.Status)
	require.NotNil(t, got.AgreedPrice)
	assert.True(t, got.AgreedPrice.Equal(agreed), "agreed price defaults to the product's")
	assert.Equal(t, p.SupplierID, got.SupplierID)

	again, err := f.svc.OnSale(context.Background(), OnSaleInput{ProductID: p.ID, SaleID: sale.ID, SalePrice: money("500")})
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID, "same sale is idempotent")

	other := f.sale(t, time.Now().UTC())
	_, err = f.svc.OnSale(context.Background(), OnSaleInput{ProductID: p.ID, SaleID: other.ID, SalePrice: money("500")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadySettled))

	open, err := f.svc.HasOpenSettlement(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestOnSale_OwnedProductHasNoSettlement(t *testing.T) {
	f := newFixture(t, nil)
	p := f.product(t, enums.ProvenanceOwned, nil, nil)
	sale := f.sale(t, time.Now().UTC())

	got, err := f.svc.OnSale(context.Background(), OnSaleInput{ProductID: p.ID, SaleID: sale.ID, SalePrice: money("80")})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.svc.OnSale(context.Background(), OnSaleInput{ProductID: uuid.New(), SaleID: sale.ID, SalePrice: money("80")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordPayout_IdempotentOnlyForIdenticalPayout(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")
	actor := uuid.New()
	paidAt := time.Date(2026, 9, 20, 11, 30, 0, 0, time.UTC)

	first, err := f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: paidAt,
	})
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Empty(t, first.Warnings)
	assert.Equal(t, enums.SettlementStatusSettled, first.Settlement.Status)
	require.NotNil(t, first.ExpenseID)

	second, err := f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300"), PaidAt: paidAt,
	})
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	_, err = f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("310.00"), PaidAt: paidAt,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadySettled))

	_, err = f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: paidAt.Add(24 * time.Hour),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadySettled))

	var expenses []models.Expense
	require.NoError(t, f.conn.Find(&expenses).Error)
	require.Len(t, expenses, 1)
	assert.Equal(t, enums.ExpenseCategoryConsignmentPayout, expenses[0].Category)
	assert.True(t, expenses[0].Amount.Equal(money("300")))
	assert.Contains(t, expenses[0].Description, "2026-09-14")
}

func TestRecordPayout_Validation(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")
	actor := uuid.New()

	_, err := f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{SettlementID: settlement.ID, Amount: money("0"), PaidAt: time.Now()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{SettlementID: settlement.ID, Amount: money("-5"), PaidAt: time.Now()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{SettlementID: settlement.ID, Amount: money("5")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{SettlementID: uuid.New(), Amount: money("5"), PaidAt: time.Now()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.RecordPayout(context.Background(), uuid.Nil, RecordPayoutInput{SettlementID: settlement.ID, Amount: money("5"), PaidAt: time.Now()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRecordPayout_DivergenceFromAgreedPriceIsAWarning(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")

	res, err := f.svc.RecordPayout(context.Background(), uuid.New(), RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("280.00"), PaidAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, pkgerrors.CodePayoutDivergence, res.Warnings[0].Code)
	assert.Equal(t, enums.SettlementStatusSettled, res.Settlement.Status)
}

func TestRecordPayout_MirrorFailureDoesNotUnwindPayout(t *testing.T) {
	var recorded []expenses.ProjectInput
	f := newFixture(t, fakeMirror{
		projectFn: func(context.Context, expenses.ProjectInput) (*models.Expense, error) {
			return nil, pkgerrors.New(pkgerrors.CodeMirrorProjectionFailed, "expense book offline")
		},
		recordFailureFn: func(_ context.Context, input expenses.ProjectInput, _ error) error {
			recorded = append(recorded, input)
			return nil
		},
	})
	settlement := f.openSettlement(t, "300.00")

	res, err := f.svc.RecordPayout(context.Background(), uuid.New(), RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, pkgerrors.CodeMirrorProjectionFailed, res.Warnings[0].Code)
	assert.True(t, res.Warnings[0].Retryable)
	assert.Nil(t, res.ExpenseID)

	stored, err := f.svc.Get(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusSettled, stored.Status)

	require.Len(t, recorded, 1)
	assert.Equal(t, settlement.ID, recorded[0].SourceID)
	assert.Equal(t, enums.ExpenseCategoryConsignmentPayout, recorded[0].Category)
}

func TestRecordPayout_ConcurrentCallsSettleOnce(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")
	paidAt := time.Now()

	amounts := []string{"300.00", "305.00"}
	errs := make([]error, len(amounts))
	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount string) {
			defer wg.Done()
			_, errs[i] = f.svc.RecordPayout(context.Background(), uuid.New(), RecordPayoutInput{
				SettlementID: settlement.ID, Amount: money(amount), PaidAt: paidAt,
			})
		}(i, amount)
	}
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadySettled):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	var count int64
	require.NoError(t, f.conn.Model(&models.Expense{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordPayout_RejectsVoidedSale(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")
	require.NoError(t, f.conn.Model(&models.Sale{}).Where("id = ?", settlement.SaleID).Update("voided", true).Error)

	_, err := f.svc.RecordPayout(context.Background(), uuid.New(), RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: time.Now(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyVoided))
}

func TestDeletePayout_ReopensAndRetractsMirror(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")
	actor := uuid.New()

	_, err := f.svc.RecordPayout(context.Background(), actor, RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: time.Now(),
	})
	require.NoError(t, err)

	res, err := f.svc.DeletePayout(context.Background(), actor, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusSoldUnsettled, res.Settlement.Status)
	assert.Nil(t, res.Settlement.PayoutAmount)
	require.NotNil(t, res.Retraction)
	assert.True(t, res.Retraction.Removed)
	assert.Equal(t, expenses.MatchSource, res.Retraction.MatchedBy)
	assert.Empty(t, res.Warnings)

	var count int64
	require.NoError(t, f.conn.Model(&models.Expense{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err = f.svc.DeletePayout(context.Background(), actor, settlement.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDeletePayout_OnVoidedSaleCancels(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")
	_, err := f.svc.RecordPayout(context.Background(), uuid.New(), RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Sale{}).Where("id = ?", settlement.SaleID).Update("voided", true).Error)

	res, err := f.svc.DeletePayout(context.Background(), uuid.New(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusCancelled, res.Settlement.Status)
}

func TestListUnsettled_Flags(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	f.svc.(*service).now = func() time.Time { return now }

	soon := now.Add(10 * 24 * time.Hour)
	past := now.Add(-2 * 24 * time.Hour)
	far := now.Add(90 * 24 * time.Hour)

	open := func(provenance enums.Provenance, end *time.Time, soldAt time.Time) uuid.UUID {
		p := f.product(t, provenance, nil, end)
		sale := f.sale(t, soldAt)
		got, err := f.svc.OnSale(context.Background(), OnSaleInput{ProductID: p.ID, SaleID: sale.ID, SalePrice: money("100"), SoldAt: soldAt})
		require.NoError(t, err)
		return got.ID
	}
	overdue := open(enums.ProvenanceTradeIn, nil, now.Add(-45*24*time.Hour))
	expiring := open(enums.ProvenanceConsignment, &soon, now.Add(-5*24*time.Hour))
	expired := open(enums.ProvenanceConsignment, &past, now.Add(-1*24*time.Hour))
	fresh := open(enums.ProvenanceConsignment, &far, now.Add(-1*time.Hour))

	rows, err := f.svc.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	byID := map[uuid.UUID]UnsettledSettlement{}
	for _, row := range rows {
		byID[row.ID] = row
	}

	assert.True(t, byID[overdue].Overdue)
	assert.Equal(t, 45, byID[overdue].DaysOutstanding)
	assert.False(t, byID[overdue].ExpiringSoon)

	assert.True(t, byID[expiring].ExpiringSoon)
	assert.False(t, byID[expiring].Overdue)

	assert.True(t, byID[expired].Expired)
	assert.False(t, byID[expired].ExpiringSoon)

	assert.False(t, byID[fresh].Overdue || byID[fresh].ExpiringSoon || byID[fresh].Expired)

	supplier := byID[overdue].SupplierID
	require.NotNil(t, supplier)
	filtered, err := f.svc.ListUnsettled(context.Background(), supplier)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, overdue, filtered[0].ID)
}

func TestCancelForSaleTx(t *testing.T) {
	f := newFixture(t, nil)
	settlement := f.openSettlement(t, "300.00")

	var cancelled int64
	var settled []models.Settlement
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		cancelled, settled, err = f.svc.CancelForSaleTx(context.Background(), tx, settlement.SaleID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)
	assert.Empty(t, settled)

	got, err := f.svc.Get(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusCancelled, got.Status)

	_, err = f.svc.RecordPayout(context.Background(), uuid.New(), RecordPayoutInput{
		SettlementID: settlement.ID, Amount: money("300.00"), PaidAt: time.Now(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(nil), Tx: db.NewFromGorm(nil)})
	require.Error(t, err)
}
