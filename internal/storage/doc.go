// Package storage keeps the fired-job ledger and the run history.
//
// The ledger records every job that left the Pending state so a restarted
// session never fires it a second time. Backends:
//   - file: JSON Lines journal compacted into a snapshot
//   - sqlite: single database file (build tag sqlite)
package storage
