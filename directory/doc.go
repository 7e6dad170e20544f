// Package directory provides a Redis-backed implementation of
// stepauth.UserDirectory for deployments without an external account system.
// Production installs that already hold users elsewhere implement the
// interface against their own store instead.
package directory
