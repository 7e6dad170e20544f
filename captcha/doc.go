// Package captcha verifies client-supplied bot-mitigation tokens against the
// reCAPTCHA siteverify endpoint. A missing token, a rejected token, and an
// unreachable service are distinct errors so the HTTP layer can answer 400,
// 400, and 503 respectively.
package captcha
