// Package httpapi mounts the authentication engine behind the legacy wire
// contract: /api/auth login and session lookup, /api/auth/verify challenge
// redemption, /api/auth/forgot and /api/auth/passwordreset for the reset
// flow. Status codes and error messages match what existing clients parse,
// including 201 emailSent, 304 alreadySent, and the {errors:[{msg,param}]}
// validation body shape.
//
// # Architecture boundaries
//
// Handlers translate HTTP requests into Engine calls and sentinels back into
// statuses. They hold no authentication logic and no storage access of their
// own.
package httpapi
