// Package secrets provides signing-secret sources for the token codec.
//
// [Static], [Env], and [File] read a secret from one place. [Cached] wraps
// any [Provider] and keeps the last value for a TTL, so a vault-backed
// provider is not queried on every token operation.
package secrets
