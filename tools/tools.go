//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// mockgen - regenerates internal/mocks from the ports in internal/core
//   Install: go install go.uber.org/mock/mockgen@v0.6.0
//   Run:     go generate ./internal/mocks/...
//
// golangci-lint - static analysis (nolint directives in the tree target it)
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
