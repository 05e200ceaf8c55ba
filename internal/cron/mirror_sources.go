package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/jewelpos-backend/internal/repo"
	"github.com/angelmondragon/jewelpos-backend/pkg/db/models"
	"github.com/angelmondragon/jewelpos-backend/pkg/enums"
	"github.com/angelmondragon/jewelpos-backend/pkg/locks"
)

type settlementReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
}

type commissionLinker interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.CommissionPayment, error)
	SetExpenseID(ctx context.Context, id, expenseID uuid.UUID) error
}

// MirrorSources re-reads the payout behind a queued projection under the
// same entity lock the payout delete paths hold.
type MirrorSources struct {
	settlements settlementReader
	commissions commissionLinker
	locker      locks.Locker
}

func NewMirrorSources(settlements settlementReader, commissions commissionLinker, locker locks.Locker) (*MirrorSources, error) {
	if settlements == nil || commissions == nil {
		return nil, fmt.Errorf("settlement and commission repositories required")
	}
	return &MirrorSources{settlements: settlements, commissions: commissions, locker: locker}, nil
}

// Hold locks the failure's source and reports whether its payout still
// stands. The returned release is always non-nil.
func (m *MirrorSources) Hold(ctx context.Context, failure models.MirrorFailure) (bool, locks.Release, error) {
	noop := func(context.Context) {}
	switch failure.SourceKind {
	case enums.MirrorSourceSettlement:
		release, err := locks.Acquire(ctx, m.locker, locks.EntitySettlement, failure.SourceID.String())
		if err != nil {
			return false, noop, err
		}
		settlement, err := m.settlements.FindByID(ctx, failure.SourceID)
		if err != nil {
			release(ctx)
			if repo.IsNotFound(err) {
				return false, noop, nil
			}
			return false, noop, fmt.Errorf("load settlement %s: %w", failure.SourceID, err)
		}
		live := settlement.Status == enums.SettlementStatusSettled && settlement.PayoutAmount != nil
		return live, release, nil

	case enums.MirrorSourceCommission:
		payment, err := m.commissions.FindByID(ctx, failure.SourceID)
		if err != nil {
			if repo.IsNotFound(err) {
				return false, noop, nil
			}
			return false, noop, fmt.Errorf("load commission payment %s: %w", failure.SourceID, err)
		}
		release, err := locks.Acquire(ctx, m.locker, locks.EntityCommission, payment.StaffID.String())
		if err != nil {
			return false, noop, err
		}
		// deleted between the read and the lock
		if _, err := m.commissions.FindByID(ctx, failure.SourceID); err != nil {
			release(ctx)
			if repo.IsNotFound(err) {
				return false, noop, nil
			}
			return false, noop, fmt.Errorf("reload commission payment %s: %w", failure.SourceID, err)
		}
		return true, release, nil
	}
	return false, noop, fmt.Errorf("unknown mirror source %q", failure.SourceKind)
}

// Link records the projected expense on the source row. Settlements are
// found from the expense side by source id and carry no back reference.
func (m *MirrorSources) Link(ctx context.Context, failure models.MirrorFailure, expenseID uuid.UUID) error {
	if failure.SourceKind != enums.MirrorSourceCommission {
		return nil
	}
	if err := m.commissions.SetExpenseID(ctx, failure.SourceID, expenseID); err != nil {
		return fmt.Errorf("link commission payment %s: %w", failure.SourceID, err)
	}
	return nil
}
