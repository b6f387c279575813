//go:build !windows

package main

import (
	"os"
	"syscall"
)

// cancelSignals stop a running simulation, comparison or MCP server.
var cancelSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
