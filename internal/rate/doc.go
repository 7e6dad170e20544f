// Package rate implements the sliding request penalty applied ahead of
// credential verification. Unlike a conventional limiter it never rejects a
// request; excess traffic is slowed, which blunts brute-force attempts
// without locking out users behind shared NATs.
package rate
