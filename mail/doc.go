// Package mail provides EmailSender implementations: an SMTP sender for
// production and a log sender for development.
package mail
