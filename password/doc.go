// Package password implements password hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) are accepted by [Hasher.Verify] and
// always reported by [Hasher.NeedsRehash], so the engine can replace them
// with Argon2id on the next successful login.
//
// This package owns hashing and verification only. Password policy (minimum
// length, reuse) is enforced by the engine.
package password
