// Package idempotency provides the claim stores that serialize payment
// verification per transaction hash.
//
// # Overview
//
// A claim is a key holding one of two states with a TTL fixed at creation:
//
//	processing -> used      (payment accepted; kept until the TTL expires)
//	processing -> (deleted) (verification failed; the hash may be retried)
//
// Claim is an atomic "set if absent", so exactly one of any number of
// concurrent callers presenting the same key owns the verification. Every
// claim expires on its own, which bounds store growth and heals claims
// abandoned by crashed or disconnected requests.
//
// # Backends
//
//   - MemoryStore: single-process deployments and tests
//   - RedisStore: SET NX for claims and SET XX KEEPTTL for finalization
//   - SQLStore: a gorm table whose primary key serializes inserts
//
// Any type with the same method set can be passed to txgate.NewGate.
package idempotency
