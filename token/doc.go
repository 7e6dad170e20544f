// Package token signs and verifies the engine's two claim shapes: bearer
// session tokens and password-reset grants. Reset grants do not survive a
// password change because the signing key embeds the password hash current
// at issuance, so verification fails once the hash moves.
package token
