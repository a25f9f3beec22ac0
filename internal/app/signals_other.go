//go:build !unix

package app

import "os"

// No user signals; use the /v1/sync routes instead.
var suspendSignal, resumeSignal os.Signal
