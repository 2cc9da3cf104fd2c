//go:build !windows

package main

import (
	"fmt"
	"io"
	"runtime"
)

func defaultNotifier(stdout io.Writer) Notifier {
	return NewConsoleNotifier(stdout)
}

func platformNotifier(style string) (Notifier, error) {
	return nil, fmt.Errorf("notification style %q is not supported on %s", style, runtime.GOOS)
}
