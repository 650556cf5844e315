// Package credstore persists the cryptographic session material needed to
// resume a messaging session without re-pairing.
//
// Storage is a flat key/value space addressed by composite keys of category
// and id ("pre-key:7", "creds:me"). Two interchangeable backends implement
// the Store interface:
//
//   - FileStore: one file per composite key under a session directory
//   - SQLiteStore: one row per composite key in a credentials table
//
// Both speak the same JSON encoding, so a session can move between backends
// across restarts. Persistence deliberately favors liveness over durability:
// read failures degrade to absence and write failures are logged and
// dropped, so storage trouble never takes the live session down with it.
package credstore
