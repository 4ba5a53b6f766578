//go:build tools
// +build tools

// Package tools pins development tooling so `go mod tidy` keeps the
// mock generator resolvable. Nothing here is compiled into the binaries.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
