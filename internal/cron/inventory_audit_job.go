package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/jewelpos-backend/internal/valuation"
	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
	"github.com/angelmondragon/jewelpos-backend/pkg/logger"
	"github.com/angelmondragon/jewelpos-backend/pkg/metrics"
)

const (
	inventoryAuditJobName = "inventory-audit"
	defaultAuditPageSize  = 200
)

type InventoryAuditJobParams struct {
	Logger    *logger.Logger
	Positions positionAuditor
	Metrics   *metrics.JobMetrics
	PageSize  int
}

type positionAuditor interface {
	ProductIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
	Recompute(ctx context.Context, productID uuid.UUID) (*valuation.Position, error)
}

func NewInventoryAuditJob(params InventoryAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Positions == nil {
		return nil, fmt.Errorf("valuation service required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	return &inventoryAuditJob{
		logg:      params.Logger,
		positions: params.Positions,
		metrics:   params.Metrics,
		pageSize:  pageSize,
	}, nil
}

// inventoryAuditJob refolds every product's ledger. Recompute refreshes the
// position cache for consistent products; inconsistent ones are counted and
// logged but do not fail the job.
type inventoryAuditJob struct {
	logg      *logger.Logger
	positions positionAuditor
	metrics   *metrics.JobMetrics
	pageSize  int
}

func (j *inventoryAuditJob) Name() string { return inventoryAuditJobName }

func (j *inventoryAuditJob) Run(ctx context.Context) error {
	var (
		errs         error
		after        uuid.UUID
		audited      int
		inconsistent []string
	)
	for {
		ids, err := j.positions.ProductIDs(ctx, after, j.pageSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("page product ids: %w", err))
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			audited++
			if _, err := j.positions.Recompute(ctx, id); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeInconsistent) {
					inconsistent = append(inconsistent, id.String())
					continue
				}
				errs = multierr.Append(errs, fmt.Errorf("recompute %s: %w", id, err))
			}
		}
		if len(ids) < j.pageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	j.metrics.AddProcessed(inventoryAuditJobName, audited)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"audited":      audited,
		"inconsistent": len(inconsistent),
	})
	if len(inconsistent) > 0 {
		j.logg.Warn(j.logg.WithField(logCtx, "inconsistent_product_ids", inconsistent), "inventory audit found inconsistent ledgers")
	} else {
		j.logg.Info(logCtx, "inventory audit complete")
	}
	return errs
}
