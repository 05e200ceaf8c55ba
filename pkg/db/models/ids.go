package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller did not supply one. Postgres also
// defaults ids with gen_random_uuid(); sqlite has no equivalent.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Product{},
		&ProvenanceChange{},
		&StockMovement{},
		&Sale{},
		&SaleItem{},
		&Settlement{},
		&CommissionPayment{},
		&Expense{},
		&MirrorFailure{},
	}
}
