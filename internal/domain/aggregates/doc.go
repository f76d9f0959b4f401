// Package aggregates declares the write boundaries of the coding ledger.
//
// Candidate state changes, merges and promotion all have to land together with their
// code_version audit rows, so they are only reachable through CandidateAggregate. The
// package holds the interface, its input and result types, and the Error type every
// implementation returns. Nothing here knows about gorm or Postgres.
package aggregates
