//go:build unix

package app

import (
	"os"
	"syscall"
)

var (
	suspendSignal os.Signal = syscall.SIGUSR1
	resumeSignal  os.Signal = syscall.SIGUSR2
)
