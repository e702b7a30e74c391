// Package httpapi exposes the engine over JSON/HTTP with echo. Handlers
// bind, delegate to the engine, and map its sentinel errors to status
// codes; no auth logic lives here.
package httpapi
