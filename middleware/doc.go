// Package middleware exposes HTTP middleware adapters enforcing bearer-token
// authentication on top of stepauth.Engine session validation.
//
// # Guards
//
//   - [Guard] — stateless session token verification, no Redis call.
//   - [RequireRole] — role gate layered on top of Guard.
//
// Guard reads the Authorization header, calls Engine.ValidateSession, and
// injects the validated session into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.ValidateSession.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the user directory.
//   - Make authorization decisions beyond pass/reject.
package middleware
