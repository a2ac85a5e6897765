// Package warden is an embeddable authentication and authorization engine:
// it issues and validates signed identity tokens, manages password
// credentials with tunable argon2id parameters, and enforces role-based
// access, independent of any particular storage or HTTP layer.
//
// The entry point is [Manager], built via [New]:
//
//	mgr, err := warden.New().
//		WithBackend(memory.New()).
//		WithTokenSecret(secret).
//		Build()
//
// User storage is pluggable through [UserBackend]; in-memory and
// gorm-backed (sqlite, postgres) implementations ship under backend/.
package warden
