// Package sessionauth is a credential and session authority: it signs in
// users with a password or Google, issues HS256 access and refresh tokens,
// rotates refresh tokens on every use, locks accounts after repeated
// failures, and runs the password reset and email verification flows.
//
// The [Engine] is built with [New] and configured through [Builder]. It
// depends on narrow collaborator interfaces ([AccountStore],
// [SecretProvider], [EmailSender], [IdentityProvider]) so storage, secret
// retrieval, mail delivery, and the OAuth provider are swappable. Concrete
// implementations live in store/gormstore, secrets, mail, and google.
//
// # Errors
//
// Every operation returns either a result or an error matching one of the
// Err* sentinels with errors.Is. Some carry data: [AccountLockedError],
// [InvalidCredentialsError], [TooManyRequestsError]. Collaborator failures
// surface as [ServerError], whose message never includes the cause.
//
// # Concurrency
//
// Engine methods are safe to call from multiple goroutines after Build.
// Shared in-memory state is limited to the OAuth state store, metrics
// counters, and the audit dispatcher.
package sessionauth
