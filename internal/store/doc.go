// ABOUTME: Store interface and data types for homeserver persistence
// ABOUTME: SQLite and Postgres implementations plus an in-memory mock

// Package store defines the persistence contract the authentication core
// consumes: account lookup, password-hash and one-time-code verification,
// and the device lifecycle.
//
// The store owns password hashing. Callers hand it plaintext secrets for
// comparison and stored bcrypt hashes for matching; nothing outside this
// package hashes or inspects secrets.
//
// Two production implementations exist, SQLiteStore and PostgresStore, both
// creating their schema on open. MockStore is the in-memory variant used by
// tests.
package store
