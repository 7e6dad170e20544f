// Package stepauth provides the credential verification and step-up
// authentication engine behind a clinical-questionnaire platform: password
// login with bot mitigation and sliding request penalties, a one-time email
// challenge for professional accounts, a trusted-address cache that skips the
// challenge on known devices, and a password-reset grant scheme whose signing
// key is bound to the current password hash.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// stepauth is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, UserRecord, AuditEvent). Rate limiting and
// randomness live under internal/ and are never exported. Token signing,
// password hashing, captcha verification, and mail transport live in their
// own leaf packages (token, password, captcha, mailer).
//
// # What this package must NOT do
//
//   - Expose Redis clients, store records, or encoding details in its public API.
//   - Hold request-relevant mutable state in process; challenge codes, trust
//     marks, and rate counters live in the shared Redis cache so horizontally
//     scaled instances agree.
//   - Import any sub-package that re-imports stepauth (no import cycles).
//
// # Security contract
//
// Login failures caused by an unknown email and by a wrong password are
// indistinguishable to callers. Reset-grant verification collapses signature,
// expiry, and identity mismatches into one error. Forgot-password reports
// success whether or not the address exists. These are deliberate
// anti-enumeration properties, not bugs.
package stepauth
