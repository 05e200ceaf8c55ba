package valuation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
)

// Service answers stock questions by folding the movement ledger.
type Service interface {
	Position(ctx context.Context, productID uuid.UUID) (*Position, error)
	// PositionTx folds inside the caller's transaction and never touches the cache.
	PositionTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Position, error)
	QuantityOnHand(ctx context.Context, productID uuid.UUID) (int, error)
	AverageCost(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	// Recompute folds from scratch and refreshes the cache.
	Recompute(ctx context.Context, productID uuid.UUID) (*Position, error)
	ProductIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
}

type service struct {
	repo    Repository
	cache   Cache
	metrics *metrics.LedgerMetrics
	logg    *logger.Logger
}

// NewService wires valuation. cache and ledgerMetrics are optional.
func NewService(repo Repository, cache Cache, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("valuation repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, cache: cache, metrics: ledgerMetrics, logg: logg}, nil
}

func (s *service) Position(ctx context.Context, productID uuid.UUID) (*Position, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, productID)
		if err != nil {
			s.logg.Warn(s.logg.WithProductID(ctx, productID.String()), "position cache read failed: "+err.Error())
		} else if ok {
			return cached, nil
		}
	}
	return s.Recompute(ctx, productID)
}

func (s *service) PositionTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*Position, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	return s.fold(ctx, s.repo.WithTx(tx), productID)
}

func (s *service) QuantityOnHand(ctx context.Context, productID uuid.UUID) (int, error) {
	pos, err := s.Position(ctx, productID)
	if err != nil {
		return 0, err
	}
	return pos.QuantityOnHand, nil
}

func (s *service) AverageCost(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	pos, err := s.Position(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return pos.AverageCost, nil
}

func (s *service) Recompute(ctx context.Context, productID uuid.UUID) (*Position, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	pos, err := s.fold(ctx, s.repo, productID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, *pos); err != nil {
			s.logg.Warn(s.logg.WithProductID(ctx, productID.String()), "position cache write failed: "+err.Error())
		}
	}
	return pos, nil
}

func (s *service) ProductIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListProductIDs(ctx, afterID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list product ids")
	}
	return ids, nil
}

func (s *service) fold(ctx context.Context, r Repository, productID uuid.UUID) (*Position, error) {
	product, err := r.FindProduct(ctx, productID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	rows, err := r.ListMovements(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock movements")
	}

	pos, err := Compute(productID, rows, product.StaticCost)
	if err != nil {
		s.metrics.IncInconsistent()
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"product_id":       productID.String(),
			"quantity_on_hand": pos.QuantityOnHand,
		}), "inventory ledger is inconsistent", err)
		return nil, err
	}
	return &pos, nil
}
