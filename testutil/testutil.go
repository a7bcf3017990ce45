/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package testutil contains helpers shared by tests of the module's packages.
package testutil

type tHelper interface {
	Helper()
}
