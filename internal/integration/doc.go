// Package integration holds end-to-end tests that build the loop binary and
// run it against a fake opencode server.
//
//	go test -tags e2e ./internal/integration/...
package integration
