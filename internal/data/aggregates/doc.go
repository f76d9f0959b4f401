// Package aggregates implements the candidate ledger on gorm.
//
// Each write method of the candidate aggregate runs in a single transaction built from the
// table repos in internal/data/repos. Failures come back as *aggregates.Error from
// internal/domain/aggregates, with Postgres and SQLite driver errors folded into the same codes.
package aggregates
