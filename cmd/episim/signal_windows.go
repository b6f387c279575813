//go:build windows

package main

import "os"

// Windows has no SIGTERM.
var cancelSignals = []os.Signal{os.Interrupt}
