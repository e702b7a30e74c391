// Package internal contains helper utilities that are intentionally private
// to sessionauth: opaque random values and token fingerprints.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: lockout policy and the Redis password-reset limiter
//   - httpapi: echo handlers for the authd service
package internal
