// Package password wraps bcrypt hashing behind the small surface the engine
// needs. Cost 10 matches the hashes already present in the credential store.
package password
