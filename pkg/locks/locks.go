// Package locks serialises concurrent writers on a single ledger entity
// (a sale, a settlement, a product or a staff member's commissions).
package locks

import (
	"context"
	"sort"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/jewelpos-backend/pkg/errors"
)

const (
	EntitySale       = "sale"
	EntitySettlement = "settlement"
	EntityProduct    = "product"
	EntityCommission = "commission"
)

// Release frees a held lock. It is safe to call more than once.
type Release func(ctx context.Context)

// Locker hands out exclusive per-entity locks.
type Locker interface {
	Acquire(ctx context.Context, entity, id string) (Release, error)
}

func noopRelease(context.Context) {}

// Acquire locks a single entity. A nil locker is a no-op so callers running
// purely on database row locks need no special casing.
func Acquire(ctx context.Context, locker Locker, entity, id string) (Release, error) {
	if locker == nil {
		return noopRelease, nil
	}
	return locker.Acquire(ctx, entity, id)
}

// AcquireAll locks every id of one entity type in a stable order, so two
// callers locking overlapping sets cannot deadlock.
func AcquireAll(ctx context.Context, locker Locker, entity string, ids []uuid.UUID) (Release, error) {
	if locker == nil || len(ids) == 0 {
		return noopRelease, nil
	}

	keys := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		key := id.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	held := make([]Release, 0, len(keys))
	releaseAll := func(ctx context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			held[i](ctx)
		}
	}
	for _, key := range keys {
		release, err := locker.Acquire(ctx, entity, key)
		if err != nil {
			releaseAll(ctx)
			return noopRelease, err
		}
		held = append(held, release)
	}
	return releaseAll, nil
}

func busyError(entity, id string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, entity+" is being modified, retry shortly").
		WithDetails(map[string]any{"entity": entity, "id": id})
}
