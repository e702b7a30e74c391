// Package jwt issues and verifies the four HS256 claim kinds used by the
// session engine: access, refresh, email verification, and password reset.
//
// The signing secret is fetched from a [KeySource] on every call, so a
// rotated secret takes effect without rebuilding the codec. A token of one
// kind is never accepted where another kind is expected.
package jwt
