//go:build !windows && !linux

package main

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

func creationTime(_ afero.Fs, _ string, fi os.FileInfo) time.Time {
	return fi.ModTime()
}
