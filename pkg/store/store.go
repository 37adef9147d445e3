// Package store provides the two persistence tiers backing the app lock.
//
// The synchronous tier (ConfigStore) is a small JSON file holding lock
// configuration. It is read fully at open time so callers can decide how
// to render before any database work completes, and it survives restarts.
//
// The asynchronous tier (SecretStore) is a SQLite-backed key-value store
// holding credential material and brute-force counters. It is the durable
// source of truth for attempt counters so a process restart cannot reset
// an active cooldown.
package store

import "errors"

// ErrNotFound is returned when a key is not present in a store.
var ErrNotFound = errors.New("store: key not found")

// File names under the app-lock state directory.
const (
	ConfigFileName = "applock.json"
	DBFileName     = "applock.db"
)
