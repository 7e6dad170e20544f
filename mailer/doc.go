// Package mailer renders and dispatches the platform's two transactional
// emails, the step-up verification code and the password-reset link, through
// a single SMTP relay.
package mailer
