// Package gormstore implements sessionauth.AccountStore and
// sessionauth.RefreshTokenRotator on top of gorm.
//
// Refresh, reset and verification tokens are stored as sha256 hashes, so
// a database dump does not yield usable credentials. Any gorm dialect
// works; the service binary uses PostgreSQL and tests use in-memory SQLite.
package gormstore
