//go:build linux

package main

import (
	"os"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// creationTime returns the birth time from statx(2) if the filesystem records
// it. Only the OS filesystem has one.
func creationTime(fs afero.Fs, path string, fi os.FileInfo) time.Time {
	if _, ok := fs.(*afero.OsFs); ok {
		var stx unix.Statx_t
		if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err == nil && stx.Mask&unix.STATX_BTIME != 0 {
			return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
		}
	}
	return fi.ModTime()
}
