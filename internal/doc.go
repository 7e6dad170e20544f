// Package internal holds helpers shared by the stepauth engine that must not
// become part of the public API surface.
package internal
