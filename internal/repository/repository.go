// Package repository provides data access for the request audit log.
//
// The only persistent state this service keeps is the request log: one
// row per patron request, written when a form is submitted or a bounce
// redirect is issued. Repositories follow a constructor pattern that
// accepts DBTX, so the same implementation works against the pool or
// inside a transaction from database.DB.WithTransaction.
//
// All implementations are safe for concurrent use; pgxpool handles
// connection pooling and synchronization.
package repository

import (
	"github.com/culsys/valet-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction
// contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults clamps limit to [1, maxFilterLimit] and ensures
// offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
