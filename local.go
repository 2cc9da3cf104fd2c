package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrNoInstallationFound = errors.New("no driver installation found")
	ErrMetadataFileMissing = errors.New("driver metadata file missing")
	ErrVersionTagNotFound  = errors.New("version tag not found in driver metadata")
)

var versionTagRe = regexp.MustCompile(`<string\s+name="version"\s+value="([^"]+)"`)

// LocalDriverInfo is the version of the installed driver.
type LocalDriverInfo struct {
	Version       Version
	VersionString string // as written in the metadata file
	SourcePath    string // the metadata file the version was read from
}

// LocalReader reads the installed driver version from the metadata left behind
// by the driver installer.
type LocalReader struct {
	fs  afero.Fs
	log zerolog.Logger

	// ctime returns the creation time of a directory entry. It defaults to
	// creationTime, which falls back to the modification time where the
	// platform or filesystem doesn't record it.
	ctime func(fs afero.Fs, path string, fi os.FileInfo) time.Time
}

func NewLocalReader(fs afero.Fs, log zerolog.Logger) *LocalReader {
	return &LocalReader{fs: fs, log: log, ctime: creationTime}
}

// ReadLocalVersion finds the most recently created directory directly under
// basePath whose name starts with namePrefix, then reads the version from
// targetFileName inside it.
//
// If multiple directories have the same creation time, the one with the
// lexicographically greatest name is used.
func (l *LocalReader) ReadLocalVersion(basePath, namePrefix, targetFileName string) (LocalDriverInfo, error) {
	dir, err := l.newestInstallation(basePath, namePrefix)
	if err != nil {
		return LocalDriverInfo{}, err
	}

	fn := filepath.Join(basePath, dir, targetFileName)
	l.log.Debug().
		Str("what", "local").
		Str("dir", dir).
		Str("file", fn).
		Msg("selected driver installation")

	buf, err := l.readText(fn)
	if err != nil {
		return LocalDriverInfo{}, err
	}

	m := versionTagRe.FindStringSubmatch(buf)
	if m == nil {
		return LocalDriverInfo{}, fmt.Errorf("read %q: %w", fn, ErrVersionTagNotFound)
	}

	v, err := ParseVersion(m[1])
	if err != nil {
		return LocalDriverInfo{}, fmt.Errorf("read %q: %w", fn, err)
	}

	return LocalDriverInfo{
		Version:       v,
		VersionString: m[1],
		SourcePath:    fn,
	}, nil
}

func (l *LocalReader) newestInstallation(basePath, namePrefix string) (string, error) {
	fis, err := afero.ReadDir(l.fs, basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("list %q: %w", basePath, ErrNoInstallationFound)
		}
		return "", fmt.Errorf("list %q: %w: %v", basePath, ErrNoInstallationFound, err)
	}

	var (
		name string
		ct   time.Time
	)
	for _, fi := range fis {
		if !strings.HasPrefix(fi.Name(), namePrefix) {
			continue
		}
		dir := fi.Name()
		fn := filepath.Join(basePath, dir)

		// symlinks and junctions
		if fi.Mode()&(os.ModeSymlink|os.ModeIrregular) != 0 {
			st, err := l.fs.Stat(fn)
			if err != nil {
				l.log.Debug().
					Str("what", "local").
					Str("dir", dir).
					Err(err).
					Msg("skipping broken link")
				continue
			}
			fi = st
		}
		if !fi.IsDir() {
			continue
		}

		t := l.ctime(l.fs, fn, fi)
		l.log.Debug().
			Str("what", "local").
			Str("dir", dir).
			Time("ctime", t).
			Msg("found driver installation")
		if name == "" || t.After(ct) || (t.Equal(ct) && dir > name) {
			name, ct = dir, t
		}
	}
	if name == "" {
		return "", fmt.Errorf("no directories in %q starting with %q: %w", basePath, namePrefix, ErrNoInstallationFound)
	}
	return name, nil
}

// readText reads a text file, honoring a UTF-8 or UTF-16 byte order mark.
func (l *LocalReader) readText(fn string) (string, error) {
	if fi, err := l.fs.Stat(fn); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("stat %q: %w", fn, ErrMetadataFileMissing)
		}
		return "", fmt.Errorf("stat %q: %w: %v", fn, ErrMetadataFileMissing, err)
	} else if fi.IsDir() {
		return "", fmt.Errorf("stat %q: is a directory: %w", fn, ErrMetadataFileMissing)
	}

	f, err := l.fs.Open(fn)
	if err != nil {
		return "", fmt.Errorf("open %q: %w: %v", fn, ErrMetadataFileMissing, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return "", fmt.Errorf("read %q: %w: %v", fn, ErrMetadataFileMissing, err)
	}
	return string(buf), nil
}
