// Package store persists podcasts, episodes, and processing runs in SQLite.
//
// The episodes table is the single source of truth for processing state. The
// unprocessed -> processing transition happens through a conditional UPDATE
// (ClaimEpisode), which makes the claim atomic across workers without any
// external locking. Completion writes the episode row and its audit run in
// one transaction.
//
// It also defines the per-episode artifact layout under the data directory
// and the key derivation that keeps episode identity stable across feed
// refreshes.
package store
