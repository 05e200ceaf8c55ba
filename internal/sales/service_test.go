package sales

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
	"github.com/angelmondragon/jewelpos-backend/internal/movements"
	"github.com/angelmondragon/jewelpos-backend/internal/settlements"
	"github.com/angelmondragon/jewelpos-backend/internal/valuation"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/dbtest"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

type fixture struct {
	sales       Service
	ledger      movements.Service
	valuation   valuation.Service
	settlements settlements.Service
	conn        *gorm.DB
	staff       uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithLocker(t, locks.NewMemoryLocker())
}

func newFixtureWithLocker(t *testing.T, locker locks.Locker) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	ledger, err := movements.NewService(movements.NewRepository(conn), client, nil, logg)
	require.NoError(t, err)
	positions, err := valuation.NewService(valuation.NewRepository(conn), nil, nil, logg)
	require.NoError(t, err)
	mirror, err := expenses.NewService(expenses.NewRepository(conn), client, nil, logg)
	require.NoError(t, err)
	engine, err := settlements.NewService(settlements.ServiceParams{
		Repo:   settlements.NewRepository(conn),
		Tx:     client,
		Mirror: mirror,
		Locker: locker,
		Logger: logg,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Tx:          client,
		Movements:   ledger,
		Positions:   positions,
		Settlements: engine,
		Locker:      locker,
		Logger:      logg,
	})
	require.NoError(t, err)

	return fixture{sales: svc, ledger: ledger, valuation: positions, settlements: engine, conn: conn, staff: uuid.New()}
}

// recordingLocker records every key it hands out.
type recordingLocker struct {
	locks.Locker
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) Acquire(ctx context.Context, entity, id string) (locks.Release, error) {
	l.mu.Lock()
	l.keys = append(l.keys, entity+":"+id)
	l.mu.Unlock()
	return l.Locker.Acquire(ctx, entity, id)
}

func (l *recordingLocker) reset() {
	l.mu.Lock()
	l.keys = nil
	l.mu.Unlock()
}

func (l *recordingLocker) acquired() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// stock creates a product and books qty units at cost: purchases for owned
// pieces, a zero-cost adjustment for consigned and traded-in ones.
func (f fixture) stock(t *testing.T, provenance enums.Provenance, qty int, cost string) models.Product {
	t.Helper()
	p := models.Product{
		SKU:        "SKU-" + uuid.NewString()[:8],
		Name:       "Piece",
		Provenance: provenance,
		StaticCost: d(cost),
	}
	kind := enums.MovementKindPurchase
	if provenance.RequiresSettlement() {
		supplier := uuid.New()
		p.SupplierID = &supplier
		kind = enums.MovementKindAdjustment
		cost = "0"
	}
	require.NoError(t, f.conn.Create(&p).Error)
	if qty > 0 {
		_, err := f.ledger.Append(context.Background(), movements.AppendInput{
			ProductID: p.ID,
			Kind:      kind,
			Direction: enums.MovementDirectionIn,
			Quantity:  qty,
			UnitCost:  d(cost),
			ActorID:   f.staff,
		})
		require.NoError(t, err)
	}
	return p
}

func (f fixture) onHand(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	qty, err := f.valuation.QuantityOnHand(context.Background(), productID)
	require.NoError(t, err)
	return qty
}

func (f fixture) movementCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.StockMovement{}).Count(&count).Error)
	return count
}

func itemFor(t *testing.T, sale SaleDTO, productID uuid.UUID) SaleItemDTO {
	t.Helper()
	for _, item := range sale.Items {
		if item.ProductID == productID {
			return item
		}
	}
	t.Fatalf("sale %s has no item for product %s", sale.ID, productID)
	return SaleItemDTO{}
}

func lineSum(sale SaleDTO) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range sale.Items {
		if !item.Voided {
			sum = sum.Add(item.LineTotal)
		}
	}
	return sum.Add(sale.TaxAmount).Sub(sale.OrderDiscount)
}

func TestRecordSale_MovesStockAndSnapshotsCost(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 10, "100.00")
	_, err := f.ledger.Append(context.Background(), movements.AppendInput{
		ProductID: ring.ID, Kind: enums.MovementKindPurchase, Direction: enums.MovementDirectionIn,
		Quantity: 5, UnitCost: d("130.00"), ActorID: f.staff,
	})
	require.NoError(t, err)

	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items:         []SaleItemInput{{ProductID: ring.ID, Quantity: 3, UnitPrice: d("250.00"), Discount: d("15.00")}},
		OrderDiscount: d("10.00"),
		TaxAmount:     d("50.00"),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	sale := res.Sale
	assert.Equal(t, f.staff, sale.StaffID)
	assert.True(t, sale.Subtotal.Equal(d("750.00")))
	assert.True(t, sale.DiscountTotal.Equal(d("25.00")))
	assert.True(t, sale.Total.Equal(d("775.00")), "total %s", sale.Total)
	assert.True(t, sale.Total.Equal(lineSum(sale)))

	item := itemFor(t, sale, ring.ID)
	assert.True(t, item.UnitCost.Equal(d("110.00")), "cost snapshot is the weighted average")
	assert.Equal(t, 12, f.onHand(t, ring.ID))

	rows, err := f.ledger.ListForSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.MovementKindSale, rows[0].Kind)
	assert.Equal(t, -3, rows[0].SignedQuantity())
}

func TestRecordSale_InsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 2, "100.00")
	before := f.movementCount(t)

	_, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{
			{ProductID: ring.ID, Quantity: 2, UnitPrice: d("250.00")},
			{ProductID: ring.ID, Quantity: 1, UnitPrice: d("250.00")},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	assert.Equal(t, before, f.movementCount(t))
	var sales int64
	require.NoError(t, f.conn.Model(&models.Sale{}).Count(&sales).Error)
	assert.Zero(t, sales)
}

func TestRecordSale_Validation(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 2, "100.00")

	cases := map[string]RecordSaleInput{
		"no items":         {},
		"zero quantity":    {Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 0, UnitPrice: d("1")}}},
		"negative price":   {Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 1, UnitPrice: d("-1")}}},
		"discount too big": {Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 1, UnitPrice: d("10"), Discount: d("11")}}},
		"negative tax":     {Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 1, UnitPrice: d("10")}}, TaxAmount: d("-1")},
		"missing product":  {Items: []SaleItemInput{{Quantity: 1, UnitPrice: d("10")}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.sales.RecordSale(context.Background(), f.staff, in)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: uuid.New(), Quantity: 1, UnitPrice: d("10")}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestVoidSale_RestoresStockExactly(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 7, "100.00")
	before := f.onHand(t, ring.ID)

	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 3, UnitPrice: d("250.00")}},
	})
	require.NoError(t, err)
	assert.Equal(t, before-3, f.onHand(t, ring.ID))

	voided, err := f.sales.VoidSale(context.Background(), f.staff, res.Sale.ID, "customer changed mind")
	require.NoError(t, err)
	assert.True(t, voided.Sale.Voided)
	require.NotNil(t, voided.Sale.VoidReason)
	assert.Equal(t, "customer changed mind", *voided.Sale.VoidReason)
	assert.Equal(t, before, f.onHand(t, ring.ID))

	cost, err := f.valuation.AverageCost(context.Background(), ring.ID)
	require.NoError(t, err)
	assert.True(t, cost.Equal(d("100.00")), "compensating entries reuse the sale's cost snapshot")
}

func TestVoidSale_TwiceIsRejectedWithoutMovements(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 5, "100.00")
	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 2, UnitPrice: d("250.00")}},
	})
	require.NoError(t, err)

	_, err = f.sales.VoidSale(context.Background(), f.staff, res.Sale.ID, "duplicate ring-up")
	require.NoError(t, err)
	after := f.movementCount(t)

	_, err = f.sales.VoidSale(context.Background(), f.staff, res.Sale.ID, "again")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyVoided))
	assert.Equal(t, after, f.movementCount(t))
	assert.Equal(t, 5, f.onHand(t, ring.ID))

	_, err = f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: res.Sale.Items[0].ID, Quantity: 1, UnitPrice: d("250"), Reason: "late edit",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyVoided))
}

func TestVoidSale_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.sales.VoidSale(context.Background(), f.staff, uuid.New(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.sales.VoidSale(context.Background(), f.staff, uuid.New(), "gone")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestEditLineItem_IsAFullResum(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 10, "100.00")
	chain := f.stock(t, enums.ProvenanceOwned, 10, "40.00")

	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{
			{ProductID: ring.ID, Quantity: 2, UnitPrice: d("199.99"), Discount: d("5.00")},
			{ProductID: chain.ID, Quantity: 1, UnitPrice: d("80.00")},
		},
		OrderDiscount: d("3.33"),
		TaxAmount:     d("12.50"),
	})
	require.NoError(t, err)
	ringItem := itemFor(t, res.Sale, ring.ID)

	edited, err := f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: ringItem.ID, Quantity: 5, UnitPrice: d("199.99"), Discount: d("7.77"), Reason: "customer took more",
	})
	require.NoError(t, err)
	assert.True(t, edited.Sale.Total.Equal(lineSum(edited.Sale)), "total %s", edited.Sale.Total)
	assert.Equal(t, 5, f.onHand(t, ring.ID))
	require.NotNil(t, edited.Sale.EditReason)
	assert.Equal(t, "customer took more", *edited.Sale.EditReason)
	require.NotNil(t, edited.Sale.EditedBy)

	again, err := f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: ringItem.ID, Quantity: 3, UnitPrice: d("189.99"), Discount: d("0"), Reason: "returned two",
	})
	require.NoError(t, err)
	assert.True(t, again.Sale.Total.Equal(lineSum(again.Sale)))
	// 3×189.99 + 80 − 0 + 12.50 − 3.33
	assert.True(t, again.Sale.Total.Equal(d("659.14")), "total %s", again.Sale.Total)
	assert.Equal(t, 7, f.onHand(t, ring.ID))
	assert.Equal(t, 9, f.onHand(t, chain.ID))

	rows, err := f.ledger.ListForSale(context.Background(), res.Sale.ID)
	require.NoError(t, err)
	kinds := []enums.MovementKind{}
	for _, row := range rows {
		if row.ProductID == ring.ID {
			kinds = append(kinds, row.Kind)
		}
	}
	assert.ElementsMatch(t, []enums.MovementKind{enums.MovementKindSale, enums.MovementKindSale, enums.MovementKindPurchase}, kinds)
}

func TestEditLineItem_GrowingBeyondStockIsRejected(t *testing.T) {
	f := newFixture(t)
	ring := f.stock(t, enums.ProvenanceOwned, 3, "100.00")
	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 2, UnitPrice: d("250.00")}},
	})
	require.NoError(t, err)

	_, err = f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: res.Sale.Items[0].ID, Quantity: 4, UnitPrice: d("250"), Reason: "typo",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, f.onHand(t, ring.ID))

	_, err = f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: uuid.New(), Quantity: 1, UnitPrice: d("250"), Reason: "typo",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: res.Sale.Items[0].ID, Quantity: 1, UnitPrice: d("250"),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "reason is mandatory")
}

func TestEditLineItem_HoldsSaleThenProductLock(t *testing.T) {
	locker := &recordingLocker{Locker: locks.NewMemoryLocker()}
	f := newFixtureWithLocker(t, locker)
	ring := f.stock(t, enums.ProvenanceOwned, 5, "100.00")
	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: ring.ID, Quantity: 1, UnitPrice: d("250.00")}},
	})
	require.NoError(t, err)
	locker.reset()

	_, err = f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: res.Sale.Items[0].ID, Quantity: 3, UnitPrice: d("250.00"), Reason: "customer took more",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		locks.EntitySale + ":" + res.Sale.ID.String(),
		locks.EntityProduct + ":" + ring.ID.String(),
	}, locker.acquired())
	assert.Equal(t, 2, f.onHand(t, ring.ID))
}

func TestRecordSale_RejectsSplitLinesForSettlementProducts(t *testing.T) {
	f := newFixture(t)
	piece := f.stock(t, enums.ProvenanceConsignment, 2, "0")
	ring := f.stock(t, enums.ProvenanceOwned, 2, "100.00")
	before := f.movementCount(t)

	_, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{
			{ProductID: piece.ID, Quantity: 1, UnitPrice: d("300.00")},
			{ProductID: piece.ID, Quantity: 1, UnitPrice: d("280.00")},
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, before, f.movementCount(t))
	assert.Equal(t, 2, f.onHand(t, piece.ID))
	unsettled, err := f.settlements.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, unsettled)

	// owned stock may still be split across lines
	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{
			{ProductID: ring.ID, Quantity: 1, UnitPrice: d("250.00")},
			{ProductID: ring.ID, Quantity: 1, UnitPrice: d("200.00")},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Sale.Items, 2)
	assert.Equal(t, 0, f.onHand(t, ring.ID))
}

func TestVoidSale_CancelsOpenSettlementsAndWarnsOnPaidOnes(t *testing.T) {
	f := newFixture(t)
	open := f.stock(t, enums.ProvenanceConsignment, 1, "0")
	paid := f.stock(t, enums.ProvenanceTradeIn, 1, "0")

	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{
			{ProductID: open.ID, Quantity: 1, UnitPrice: d("500.00")},
			{ProductID: paid.ID, Quantity: 1, UnitPrice: d("120.00")},
		},
	})
	require.NoError(t, err)

	unsettled, err := f.settlements.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, unsettled, 2)
	var paidID uuid.UUID
	for _, row := range unsettled {
		if row.ProductID == paid.ID {
			paidID = row.ID
		}
	}
	_, err = f.settlements.RecordPayout(context.Background(), f.staff, settlements.RecordPayoutInput{
		SettlementID: paidID, Amount: d("60.00"), PaidAt: time.Now(),
	})
	require.NoError(t, err)

	voided, err := f.sales.VoidSale(context.Background(), f.staff, res.Sale.ID, "fraudulent card")
	require.NoError(t, err)
	require.Len(t, voided.Warnings, 1)
	assert.Equal(t, pkgerrors.CodeSettledPayoutRemains, voided.Warnings[0].Code)

	unsettled, err = f.settlements.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, unsettled)
	assert.Equal(t, 1, f.onHand(t, open.ID))
	assert.Equal(t, 1, f.onHand(t, paid.ID))
}

func TestEditLineItem_OpenSettlementFollowsLineTotal(t *testing.T) {
	f := newFixture(t)
	piece := f.stock(t, enums.ProvenanceConsignment, 1, "0")
	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: piece.ID, Quantity: 1, UnitPrice: d("500.00")}},
	})
	require.NoError(t, err)

	_, err = f.sales.EditLineItem(context.Background(), f.staff, EditLineItemInput{
		SaleID: res.Sale.ID, ItemID: res.Sale.Items[0].ID, Quantity: 1, UnitPrice: d("500.00"), Discount: d("50.00"), Reason: "price match",
	})
	require.NoError(t, err)

	unsettled, err := f.settlements.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.True(t, unsettled[0].SalePrice.Equal(d("450.00")))
}

func TestConsignmentLifecycle(t *testing.T) {
	f := newFixture(t)
	agreed := d("300.00")
	supplier := uuid.New()
	piece := models.Product{
		SKU: "CONS-42", Name: "Art deco brooch", Provenance: enums.ProvenanceConsignment,
		SupplierID: &supplier, AgreedPrice: &agreed,
	}
	require.NoError(t, f.conn.Create(&piece).Error)
	_, err := f.ledger.Append(context.Background(), movements.AppendInput{
		ProductID: piece.ID, Kind: enums.MovementKindAdjustment, Direction: enums.MovementDirectionIn,
		Quantity: 1, UnitCost: decimal.Zero, SupplierID: &supplier, ActorID: f.staff,
	})
	require.NoError(t, err)

	purchases := 0
	rows, err := f.ledger.ListForProduct(context.Background(), piece.ID)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Kind == enums.MovementKindPurchase {
			purchases++
		}
	}
	assert.Zero(t, purchases, "consigned stock is never bought")

	res, err := f.sales.RecordSale(context.Background(), f.staff, RecordSaleInput{
		Items: []SaleItemInput{{ProductID: piece.ID, Quantity: 1, UnitPrice: d("500.00")}},
	})
	require.NoError(t, err)

	unsettled, err := f.settlements.ListUnsettled(context.Background(), &supplier)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	settlement := unsettled[0]
	assert.Equal(t, res.Sale.ID, settlement.SaleID)
	assert.Equal(t, enums.SettlementStatusSoldUnsettled, settlement.Status)
	assert.True(t, settlement.SalePrice.Equal(d("500.00")))
	require.NotNil(t, settlement.AgreedPrice)
	assert.True(t, settlement.AgreedPrice.Equal(agreed))

	payout, err := f.settlements.RecordPayout(context.Background(), f.staff, settlements.RecordPayoutInput{
		SettlementID: settlement.ID, Amount: d("300.00"), PaidAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, payout.Warnings)
	assert.Equal(t, enums.SettlementStatusSettled, payout.Settlement.Status)

	var mirrored []models.Expense
	require.NoError(t, f.conn.Find(&mirrored).Error)
	require.Len(t, mirrored, 1)
	assert.True(t, mirrored[0].Amount.Equal(d("300")))
	assert.Equal(t, enums.ExpenseCategoryConsignmentPayout, mirrored[0].Category)

	unsettled, err = f.settlements.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, unsettled)

	deleted, err := f.settlements.DeletePayout(context.Background(), f.staff, settlement.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Retraction.Removed)
	assert.Equal(t, enums.SettlementStatusSoldUnsettled, deleted.Settlement.Status)

	require.NoError(t, f.conn.Find(&mirrored).Error)
	assert.Empty(t, mirrored)
	unsettled, err = f.settlements.ListUnsettled(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, unsettled, 1)
}
