package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/movements"
	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/internal/settlements"
	"github.com/angelmondragon/jewelpos-backend/internal/valuation"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type movementAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input movements.AppendInput) (*models.StockMovement, error)
	InvalidatePositions(ctx context.Context, productIDs ...uuid.UUID)
}

type positionReader interface {
	PositionTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*valuation.Position, error)
}

type settlementHooks interface {
	OnSaleTx(ctx context.Context, tx *gorm.DB, input settlements.OnSaleInput) (*models.Settlement, error)
	CancelForSaleTx(ctx context.Context, tx *gorm.DB, saleID uuid.UUID) (int64, []models.Settlement, error)
	UpdateSalePriceTx(ctx context.Context, tx *gorm.DB, saleItemID uuid.UUID, price decimal.Decimal) (int64, error)
}

// Service records sales and reverses them. Every stock effect is a ledger
// movement; nothing is ever deleted.
type Service interface {
	RecordSale(ctx context.Context, actorID uuid.UUID, input RecordSaleInput) (*Result, error)
	GetSale(ctx context.Context, saleID uuid.UUID) (*SaleDTO, error)
	ListSales(ctx context.Context, filter ListFilter) ([]SaleDTO, error)
	VoidSale(ctx context.Context, actorID uuid.UUID, saleID uuid.UUID, reason string) (*Result, error)
	EditLineItem(ctx context.Context, actorID uuid.UUID, input EditLineItemInput) (*Result, error)
}

type RecordSaleInput struct {
	CustomerID    *uuid.UUID
	Items         []SaleItemInput
	OrderDiscount decimal.Decimal
	TaxAmount     decimal.Decimal
	SoldAt        time.Time
}

type SaleItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// EditLineItemInput replaces one line's quantity, price and discount.
type EditLineItemInput struct {
	SaleID    uuid.UUID
	ItemID    uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	Reason    string
}

type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Movements   movementAppender
	Positions   positionReader
	Settlements settlementHooks
	Locker      locks.Locker
	Logger      *logger.Logger
}

type service struct {
	repo        Repository
	tx          txRunner
	movements   movementAppender
	positions   positionReader
	settlements settlementHooks
	locker      locks.Locker
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("sale repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Movements == nil {
		return nil, fmt.Errorf("movement ledger required")
	}
	if params.Positions == nil {
		return nil, fmt.Errorf("valuation required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		movements:   params.Movements,
		positions:   params.Positions,
		settlements: params.Settlements,
		locker:      params.Locker,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

func (s *service) RecordSale(ctx context.Context, actorID uuid.UUID, input RecordSaleInput) (*Result, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if err := validateSale(input); err != nil {
		return nil, err
	}

	needed := make(map[uuid.UUID]int, len(input.Items))
	lines := make(map[uuid.UUID]int, len(input.Items))
	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if _, seen := needed[item.ProductID]; !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		needed[item.ProductID] += item.Quantity
		lines[item.ProductID]++
	}

	release, err := locks.AcquireAll(ctx, s.locker, locks.EntityProduct, productIDs)
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	soldAt := input.SoldAt
	if soldAt.IsZero() {
		soldAt = s.now()
	}
	soldAt = soldAt.UTC()

	var created *models.Sale
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		products, err := txRepo.FindProducts(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}

		costs := make(map[uuid.UUID]decimal.Decimal, len(productIDs))
		for _, id := range productIDs {
			product, ok := products[id]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": id.String()})
			}
			// One open settlement per consigned or traded-in product.
			if product.Provenance.RequiresSettlement() && lines[id] > 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "settlement product must be sold on a single line").
					WithDetails(map[string]any{"product_id": id.String(), "lines": lines[id]})
			}
			pos, err := s.positions.PositionTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if pos.QuantityOnHand < needed[id] {
				return insufficientStock(id, pos.QuantityOnHand, needed[id])
			}
			costs[id] = pos.AverageCost
		}

		sale := &models.Sale{
			StaffID:       actorID,
			CustomerID:    input.CustomerID,
			OrderDiscount: input.OrderDiscount.Round(2),
			TaxAmount:     input.TaxAmount.Round(2),
			SoldAt:        soldAt,
		}
		for _, item := range input.Items {
			sale.Items = append(sale.Items, models.SaleItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice.Round(2),
				Discount:  item.Discount.Round(2),
				UnitCost:  costs[item.ProductID],
			})
		}
		totals := ComputeTotals(sale.Items, sale.OrderDiscount, sale.TaxAmount)
		sale.Subtotal = totals.Subtotal
		sale.DiscountTotal = totals.DiscountTotal
		sale.Total = totals.Total
		if err := txRepo.Create(ctx, sale); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert sale")
		}

		for i := range sale.Items {
			item := &sale.Items[i]
			product := products[item.ProductID]
			if _, err := s.movements.AppendTx(ctx, tx, movements.AppendInput{
				ProductID:  item.ProductID,
				Kind:       enums.MovementKindSale,
				Direction:  enums.MovementDirectionOut,
				Quantity:   item.Quantity,
				UnitCost:   item.UnitCost,
				SupplierID: product.SupplierID,
				SaleID:     &sale.ID,
				SaleItemID: &item.ID,
				ActorID:    actorID,
				OccurredAt: soldAt,
			}); err != nil {
				return err
			}
			if !product.Provenance.RequiresSettlement() {
				continue
			}
			if _, err := s.settlements.OnSaleTx(ctx, tx, settlements.OnSaleInput{
				ProductID:  item.ProductID,
				SaleID:     sale.ID,
				SaleItemID: &item.ID,
				SalePrice:  item.LineTotal(),
				SoldAt:     soldAt,
			}); err != nil {
				return err
			}
		}
		created = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.movements.InvalidatePositions(ctx, productIDs...)

	logCtx := s.logg.WithFields(s.logg.WithSaleID(ctx, created.ID.String()), map[string]any{
		"items": len(created.Items),
		"total": created.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "sale recorded")
	return &Result{Sale: *NewSaleDTO(created)}, nil
}

func (s *service) GetSale(ctx context.Context, saleID uuid.UUID) (*SaleDTO, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	sale, err := s.repo.FindByID(ctx, saleID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	return NewSaleDTO(sale), nil
}

func (s *service) ListSales(ctx context.Context, filter ListFilter) ([]SaleDTO, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	out := make([]SaleDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewSaleDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) VoidSale(ctx context.Context, actorID uuid.UUID, saleID uuid.UUID, reason string) (*Result, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "void reason required")
	}

	release, err := locks.Acquire(ctx, s.locker, locks.EntitySale, saleID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var (
		voided   *models.Sale
		touched  []uuid.UUID
		warnings []pkgerrors.Warning
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		sale, err := s.loadForUpdate(ctx, txRepo, saleID)
		if err != nil {
			return err
		}
		if sale.Voided {
			return alreadyVoided(sale)
		}

		now := s.now().UTC()
		rows, err := txRepo.MarkVoided(ctx, sale.ID, VoidFields{Reason: reason, VoidedBy: actorID, VoidedAt: now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void sale")
		}
		if rows == 0 {
			return alreadyVoided(sale)
		}

		for i := range sale.Items {
			item := &sale.Items[i]
			if item.Voided {
				continue
			}
			if _, err := s.movements.AppendTx(ctx, tx, movements.AppendInput{
				ProductID:  item.ProductID,
				Kind:       enums.MovementKindPurchase,
				Direction:  enums.MovementDirectionIn,
				Quantity:   item.Quantity,
				UnitCost:   item.UnitCost,
				SaleID:     &sale.ID,
				SaleItemID: &item.ID,
				Note:       "void: " + reason,
				ActorID:    actorID,
				OccurredAt: now,
			}); err != nil {
				return err
			}
			touched = append(touched, item.ProductID)
		}

		_, settled, err := s.settlements.CancelForSaleTx(ctx, tx, sale.ID)
		if err != nil {
			return err
		}
		for _, row := range settled {
			warnings = append(warnings, pkgerrors.NewWarning(pkgerrors.CodeSettledPayoutRemains,
				fmt.Sprintf("settlement %s was already paid out; delete the payout to reverse it", row.ID)))
		}

		voided, err = txRepo.FindByID(ctx, sale.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload sale")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.movements.InvalidatePositions(ctx, touched...)

	logCtx := s.logg.WithFields(s.logg.WithSaleID(ctx, saleID.String()), map[string]any{
		"restored_lines": len(touched),
		"reason":         reason,
	})
	s.logg.Info(logCtx, "sale voided")
	return &Result{Sale: *NewSaleDTO(voided), Warnings: warnings}, nil
}

func (s *service) EditLineItem(ctx context.Context, actorID uuid.UUID, input EditLineItemInput) (*Result, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if err := validateEdit(input); err != nil {
		return nil, err
	}

	release, err := locks.Acquire(ctx, s.locker, locks.EntitySale, input.SaleID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	// Growing a line draws stock and must serialise with RecordSale on the
	// product. Sale lock first, then product.
	productID, err := s.itemProduct(ctx, input.SaleID, input.ItemID)
	if err != nil {
		return nil, err
	}
	releaseProduct, err := locks.Acquire(ctx, s.locker, locks.EntityProduct, productID.String())
	if err != nil {
		return nil, err
	}
	defer releaseProduct(ctx)

	var (
		edited *models.Sale
		delta  int
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		sale, err := s.loadForUpdate(ctx, txRepo, input.SaleID)
		if err != nil {
			return err
		}
		if sale.Voided {
			return alreadyVoided(sale)
		}

		var item *models.SaleItem
		for i := range sale.Items {
			if sale.Items[i].ID == input.ItemID {
				item = &sale.Items[i]
				break
			}
		}
		if item == nil || item.Voided || item.ProductID != productID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "sale item not found")
		}
		now := s.now().UTC()

		delta = item.Quantity - input.Quantity
		if delta != 0 {
			move := movements.AppendInput{
				ProductID:  item.ProductID,
				UnitCost:   item.UnitCost,
				SaleID:     &sale.ID,
				SaleItemID: &item.ID,
				Note:       "edit: " + input.Reason,
				ActorID:    actorID,
				OccurredAt: now,
			}
			if delta > 0 {
				move.Kind = enums.MovementKindPurchase
				move.Direction = enums.MovementDirectionIn
				move.Quantity = delta
			} else {
				pos, err := s.positions.PositionTx(ctx, tx, item.ProductID)
				if err != nil {
					return err
				}
				if pos.QuantityOnHand < -delta {
					return insufficientStock(item.ProductID, pos.QuantityOnHand, -delta)
				}
				move.Kind = enums.MovementKindSale
				move.Direction = enums.MovementDirectionOut
				move.Quantity = -delta
			}
			if _, err := s.movements.AppendTx(ctx, tx, move); err != nil {
				return err
			}
		}

		item.Quantity = input.Quantity
		item.UnitPrice = input.UnitPrice.Round(2)
		item.Discount = input.Discount.Round(2)
		if err := txRepo.UpdateItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sale item")
		}

		totals := ComputeTotals(sale.Items, sale.OrderDiscount, sale.TaxAmount)
		if err := txRepo.UpdateTotals(ctx, sale.ID, totals, &EditFields{
			Reason:   input.Reason,
			EditedBy: actorID,
			EditedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sale totals")
		}

		if _, err := s.settlements.UpdateSalePriceTx(ctx, tx, item.ID, item.LineTotal()); err != nil {
			return err
		}

		edited, err = txRepo.FindByID(ctx, sale.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload sale")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if delta != 0 {
		s.movements.InvalidatePositions(ctx, productID)
	}

	logCtx := s.logg.WithFields(s.logg.WithSaleID(ctx, input.SaleID.String()), map[string]any{
		"item_id":        input.ItemID.String(),
		"quantity_delta": delta,
		"total":          edited.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "sale line edited")
	return &Result{Sale: *NewSaleDTO(edited)}, nil
}

func (s *service) itemProduct(ctx context.Context, saleID, itemID uuid.UUID) (uuid.UUID, error) {
	sale, err := s.repo.FindByID(ctx, saleID)
	if err != nil {
		if repo.IsNotFound(err) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	for _, item := range sale.Items {
		if item.ID == itemID && !item.Voided {
			return item.ProductID, nil
		}
	}
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale item not found")
}

func (s *service) loadForUpdate(ctx context.Context, r Repository, saleID uuid.UUID) (*models.Sale, error) {
	sale, err := r.FindByIDForUpdate(ctx, saleID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	return sale, nil
}

func validateSale(input RecordSaleInput) error {
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale needs at least one item")
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required").
				WithDetails(map[string]any{"item": i})
		}
		if err := validateLine(item.Quantity, item.UnitPrice, item.Discount); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, err.Error()).
				WithDetails(map[string]any{"item": i})
		}
	}
	if input.OrderDiscount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order discount cannot be negative")
	}
	if input.TaxAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "tax cannot be negative")
	}
	return nil
}

func validateEdit(input EditLineItemInput) error {
	if input.SaleID == uuid.Nil || input.ItemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale id and item id required")
	}
	if input.Reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "edit reason required")
	}
	if err := validateLine(input.Quantity, input.UnitPrice, input.Discount); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	return nil
}

func validateLine(qty int, price, discount decimal.Decimal) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be a positive integer")
	}
	if price.IsNegative() {
		return fmt.Errorf("unit price cannot be negative")
	}
	if discount.IsNegative() {
		return fmt.Errorf("discount cannot be negative")
	}
	if discount.GreaterThan(price.Mul(decimal.NewFromInt(int64(qty)))) {
		return fmt.Errorf("discount exceeds the line value")
	}
	return nil
}

func insufficientStock(productID uuid.UUID, onHand, requested int) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"on_hand":    onHand,
			"requested":  requested,
		})
}

func alreadyVoided(sale *models.Sale) error {
	details := map[string]any{"sale_id": sale.ID.String()}
	if sale.VoidedAt != nil {
		details["voided_at"] = sale.VoidedAt.UTC().Format(time.RFC3339)
	}
	return pkgerrors.New(pkgerrors.CodeAlreadyVoided, "sale already voided").WithDetails(details)
}
