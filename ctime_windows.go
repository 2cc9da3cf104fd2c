//go:build windows

package main

import (
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

func creationTime(_ afero.Fs, _ string, fi os.FileInfo) time.Time {
	if d, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, d.CreationTime.Nanoseconds())
	}
	return fi.ModTime()
}
