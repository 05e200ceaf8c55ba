package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PositionInvalidator drops any cached stock position for a product.
type PositionInvalidator interface {
	Invalidate(ctx context.Context, productID uuid.UUID) error
}

// Service is the append-only inventory ledger.
type Service interface {
	Append(ctx context.Context, input AppendInput) (*models.StockMovement, error)
	// AppendTx appends inside the caller's transaction. The caller must call
	// InvalidatePositions once the transaction commits.
	AppendTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.StockMovement, error)
	ListForProduct(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error)
	PageForProduct(ctx context.Context, params ListParams) (*ListResult, error)
	ListForSale(ctx context.Context, saleID uuid.UUID) ([]models.StockMovement, error)
	InvalidatePositions(ctx context.Context, productIDs ...uuid.UUID)
}

// AppendInput captures one stock movement. Quantity is always positive; the
// direction carries the sign.
type AppendInput struct {
	ProductID  uuid.UUID               `json:"product_id"`
	Kind       enums.MovementKind      `json:"kind"`
	Direction  enums.MovementDirection `json:"direction"`
	Quantity   int                     `json:"quantity"`
	UnitCost   decimal.Decimal         `json:"unit_cost"`
	SupplierID *uuid.UUID              `json:"supplier_id,omitempty"`
	SaleID     *uuid.UUID              `json:"sale_id,omitempty"`
	SaleItemID *uuid.UUID              `json:"sale_item_id,omitempty"`
	Note       string                  `json:"note,omitempty"`
	ActorID    uuid.UUID               `json:"actor_id"`
	OccurredAt time.Time               `json:"occurred_at"`
}

type service struct {
	repo        Repository
	tx          txRunner
	invalidator PositionInvalidator
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the ledger. The invalidator may be nil when no position cache is configured.
func NewService(repo Repository, tx txRunner, invalidator PositionInvalidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("movements repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		invalidator: invalidator,
		logg:        logg,
		now:         time.Now,
	}, nil
}

func (s *service) Append(ctx context.Context, input AppendInput) (*models.StockMovement, error) {
	var created *models.StockMovement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.AppendTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.InvalidatePositions(ctx, created.ProductID)
	return created, nil
}

func (s *service) AppendTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.StockMovement, error) {
	if err := validateAppend(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	exists, err := repo.ProductExists(ctx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	movement := &models.StockMovement{
		ProductID:  input.ProductID,
		Kind:       input.Kind,
		Direction:  input.Direction,
		Quantity:   input.Quantity,
		UnitCost:   input.UnitCost.Round(2),
		SupplierID: input.SupplierID,
		SaleID:     input.SaleID,
		SaleItemID: input.SaleItemID,
		Note:       input.Note,
		ActorID:    input.ActorID,
		OccurredAt: occurredAt.UTC(),
	}
	if err := repo.Create(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movement")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"movement_id": movement.ID.String(),
		"product_id":  movement.ProductID.String(),
		"kind":        movement.Kind,
		"direction":   movement.Direction,
		"quantity":    movement.Quantity,
	})
	s.logg.Info(logCtx, "stock movement appended")
	return movement, nil
}

func (s *service) ListForProduct(ctx context.Context, productID uuid.UUID) ([]models.StockMovement, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	exists, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	rows, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return rows, nil
}

func (s *service) PageForProduct(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	exists, err := s.repo.ProductExists(ctx, params.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	rows, err := s.repo.PageByProduct(ctx, params.ProductID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "page stock movements")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return &ListResult{Items: NewMovementDTOs(rows), Cursor: next}, nil
}

func (s *service) ListForSale(ctx context.Context, saleID uuid.UUID) ([]models.StockMovement, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id required")
	}
	rows, err := s.repo.ListBySale(ctx, saleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sale movements")
	}
	return rows, nil
}

// InvalidatePositions is best effort: a stale cache entry only lives until its TTL
// and the audit job recomputes from the ledger regardless.
func (s *service) InvalidatePositions(ctx context.Context, productIDs ...uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	for _, id := range productIDs {
		if err := s.invalidator.Invalidate(ctx, id); err != nil {
			s.logg.Warn(s.logg.WithProductID(ctx, id.String()), "invalidate cached position failed: "+err.Error())
		}
	}
}

func validateAppend(input AppendInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid movement kind %q", input.Kind)
	}
	if !input.Direction.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid movement direction %q", input.Direction)
	}
	if !input.Kind.AllowsDirection(input.Direction) {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "%s movements cannot be %s", input.Kind, input.Direction)
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a positive integer").
			WithDetails(map[string]any{"quantity": input.Quantity})
	}
	if input.UnitCost.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit cost cannot be negative")
	}
	return nil
}
