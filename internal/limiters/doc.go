// Package limiters holds the attempt-counting policies used by the engine.
//
//   - [LockoutPolicy]: pure decision from a user's stored attempt count and
//     lock timestamp to the next state after a failed login.
//   - [PasswordResetLimiter]: Redis sorted-set rolling window for reset
//     requests, keyed by an email fingerprint.
//
// Limiters count; the engine decides consequences.
package limiters
