// Package store provides the dispatch usage ledger backed by SQLite.
//
// Every dispatch outcome (answered, provider failure, context too large) is
// recorded as a UsageRecord: model, conversation id, estimated prompt and
// response tokens, latency and status. Conversation content is never written
// here; conversations live only in process memory.
//
// # SQLite Configuration
//
// File-backed databases use WAL mode. The default path ":memory:" keeps the
// ledger in memory on a single connection, so nothing survives a restart.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:", nil) for
// integration tests with real SQLite.
package store
