package products

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
	"github.com/angelmondragon/jewelpos-backend/pkg/db"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
)

const creationReason = "initial classification"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type movementAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input movements.AppendInput) (*models.StockMovement, error)
	InvalidatePositions(ctx context.Context, productIDs ...uuid.UUID)
}

// Service owns the catalogue and the provenance classification of each piece.
type Service interface {
	CreateProduct(ctx context.Context, actorID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]ProductDTO, error)
	// Reclassify is the only path that changes a product's provenance.
	Reclassify(ctx context.Context, actorID uuid.UUID, input ReclassifyInput) (*ProductDTO, error)
	ProvenanceHistory(ctx context.Context, productID uuid.UUID) ([]ProvenanceChangeDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	SKU                string
	Name               string
	Provenance         enums.Provenance
	SupplierID         *uuid.UUID
	StaticCost         decimal.Decimal
	RetailPrice        decimal.Decimal
	AgreedPrice        *decimal.Decimal
	ConsignmentEndDate *time.Time
	// OpeningQuantity books initial stock. Owned stock is booked as a purchase
	// at StaticCost; consigned and traded-in pieces as a zero-cost adjustment.
	OpeningQuantity int
}

// ReclassifyInput is an explicit, audited provenance change.
type ReclassifyInput struct {
	ProductID          uuid.UUID
	To                 enums.Provenance
	Reason             string
	SupplierID         *uuid.UUID
	AgreedPrice        *decimal.Decimal
	ConsignmentEndDate *time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	movements movementAppender
	locker    locks.Locker
	logg      *logger.Logger
}

// NewService constructs a product service instance. locker may be nil.
func NewService(repo Repository, tx txRunner, movements movementAppender, locker locks.Locker, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if movements == nil {
		return nil, fmt.Errorf("movement ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, movements: movements, locker: locker, logg: logg}, nil
}

func (s *service) CreateProduct(ctx context.Context, actorID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	product := &models.Product{
		SKU:                input.SKU,
		Name:               input.Name,
		Provenance:         input.Provenance,
		SupplierID:         input.SupplierID,
		StaticCost:         input.StaticCost.Round(2),
		RetailPrice:        input.RetailPrice.Round(2),
		AgreedPrice:        roundPtr(input.AgreedPrice),
		ConsignmentEndDate: utcPtr(input.ConsignmentEndDate),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Create(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "sku already exists").
					WithDetails(map[string]any{"sku": input.SKU})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}

		if err := txRepo.CreateProvenanceChange(ctx, &models.ProvenanceChange{
			ProductID: product.ID,
			To:        product.Provenance,
			Reason:    creationReason,
			ActorID:   actorID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert provenance change")
		}

		if input.OpeningQuantity > 0 {
			if _, err := s.movements.AppendTx(ctx, tx, openingMovement(product, input.OpeningQuantity, actorID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	if input.OpeningQuantity > 0 {
		s.movements.InvalidatePositions(ctx, product.ID)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"product_id": product.ID.String(),
		"sku":        product.SKU,
		"provenance": product.Provenance,
	})
	s.logg.Info(logCtx, "product created")
	return NewProductDTO(product), nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, s.repo, productID)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

func (s *service) ListProducts(ctx context.Context, filter ListFilter) ([]ProductDTO, error) {
	if filter.Provenance != nil && !filter.Provenance.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid provenance filter")
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewProductDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) Reclassify(ctx context.Context, actorID uuid.UUID, input ReclassifyInput) (*ProductDTO, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "staff identity missing")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid provenance %q", input.To)
	}
	input.Reason = strings.TrimSpace(input.Reason)
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reclassification reason required")
	}

	release, err := locks.Acquire(ctx, s.locker, locks.EntityProduct, input.ProductID.String())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	var updated *models.Product
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := s.loadForUpdate(ctx, txRepo, input.ProductID)
		if err != nil {
			return err
		}
		if current.Provenance == input.To {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product already has this provenance").
				WithDetails(map[string]any{"provenance": current.Provenance})
		}

		open, err := txRepo.CountOpenSettlements(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open settlements")
		}
		if open > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product has an unsettled sale; settle it before reclassifying")
		}

		change := ProvenanceUpdate{To: input.To}
		if input.To.RequiresSettlement() {
			change.SupplierID = input.SupplierID
			if change.SupplierID == nil {
				change.SupplierID = current.SupplierID
			}
			if change.SupplierID == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "supplier id required for "+string(input.To))
			}
			change.AgreedPrice = roundPtr(input.AgreedPrice)
			if change.AgreedPrice == nil {
				change.AgreedPrice = current.AgreedPrice
			}
			if input.To == enums.ProvenanceConsignment {
				change.ConsignmentEndDate = utcPtr(input.ConsignmentEndDate)
			}
		}

		rows, err := txRepo.UpdateProvenance(ctx, current.ID, current.Provenance, change)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update provenance")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "product provenance changed concurrently")
		}

		if err := txRepo.CreateProvenanceChange(ctx, &models.ProvenanceChange{
			ProductID: current.ID,
			From:      current.Provenance,
			To:        input.To,
			Reason:    input.Reason,
			ActorID:   actorID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert provenance change")
		}

		updated, err = txRepo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": current.ID.String(),
			"from":       current.Provenance,
			"to":         input.To,
		})
		s.logg.Info(logCtx, "product reclassified")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewProductDTO(updated), nil
}

func (s *service) ProvenanceHistory(ctx context.Context, productID uuid.UUID) ([]ProvenanceChangeDTO, error) {
	if _, err := s.load(ctx, s.repo, productID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListProvenanceChanges(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list provenance changes")
	}
	return newProvenanceChangeDTOs(rows), nil
}

func (s *service) load(ctx context.Context, r Repository, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := r.FindByID(ctx, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) loadForUpdate(ctx context.Context, r Repository, productID uuid.UUID) (*models.Product, error) {
	product, err := r.FindByIDForUpdate(ctx, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func validateCreate(input CreateProductInput) error {
	if input.SKU == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	if input.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if !input.Provenance.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid provenance %q", input.Provenance)
	}
	if input.Provenance.RequiresSettlement() && input.SupplierID == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier id required for "+string(input.Provenance))
	}
	if input.StaticCost.IsNegative() || input.RetailPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "prices cannot be negative")
	}
	if input.AgreedPrice != nil && input.AgreedPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "agreed price cannot be negative")
	}
	if input.OpeningQuantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "opening quantity cannot be negative")
	}
	return nil
}

func openingMovement(product *models.Product, qty int, actorID uuid.UUID) movements.AppendInput {
	in := movements.AppendInput{
		ProductID:  product.ID,
		Direction:  enums.MovementDirectionIn,
		Quantity:   qty,
		SupplierID: product.SupplierID,
		ActorID:    actorID,
		Note:       "opening stock",
	}
	if product.Provenance == enums.ProvenanceOwned {
		in.Kind = enums.MovementKindPurchase
		in.UnitCost = product.StaticCost
	} else {
		in.Kind = enums.MovementKindAdjustment
		in.UnitCost = decimal.Zero
		in.Note = "received on " + string(product.Provenance)
	}
	return in
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(2)
	return &r
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
