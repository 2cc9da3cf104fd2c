package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "/nvidia/Installer2"

func nvi(version string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<nvi name="Display.Driver" title="${{title}}" version="` + version + `" versionText="${{version}}">
	<strings>
		<string name="title" value="NVIDIA Graphics Driver"/>
		<string name="version" value="` + version + `" />
		<string name="ArpDisplayName" value="NVIDIA Graphics Driver ${{version}}"/>
	</strings>
</nvi>
`
}

type testInstall struct {
	dir   string
	ctime int64
	file  string // DisplayDriver.nvi content, not created if empty
}

func testFs(t *testing.T, installs ...testInstall) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(testBase, 0755))
	for _, in := range installs {
		d := filepath.Join(testBase, in.dir)
		require.NoError(t, fs.MkdirAll(d, 0755))
		if in.file != "" {
			require.NoError(t, afero.WriteFile(fs, filepath.Join(d, "DisplayDriver.nvi"), []byte(in.file), 0644))
		}
	}
	for _, in := range installs {
		ts := time.Unix(in.ctime, 0)
		require.NoError(t, fs.Chtimes(filepath.Join(testBase, in.dir), ts, ts))
	}
	return fs
}

func TestReadLocalVersion(t *testing.T) {
	fs := testFs(t,
		testInstall{"Display.Driver.A", 10, nvi("572.83")},
		testInstall{"Display.Driver.B", 20, nvi("576.02")},
		testInstall{"Other.Thing", 30, nvi("999.99")},
		testInstall{"Display.Optimus", 40, nvi("1.0")},
	)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(testBase, "Display.Driver.File"), []byte(nvi("888.88")), 0644))

	info, err := NewLocalReader(fs, zerolog.Nop()).ReadLocalVersion(testBase, "Display.Driver", "DisplayDriver.nvi")
	require.NoError(t, err)
	assert.Equal(t, Version{576, 2}, info.Version)
	assert.Equal(t, "576.02", info.VersionString)
	assert.Equal(t, filepath.Join(testBase, "Display.Driver.B", "DisplayDriver.nvi"), info.SourcePath)
}

func TestReadLocalVersionSelection(t *testing.T) {
	for _, c := range []struct {
		name   string
		ctimes map[string]int64
		out    string
	}{
		{"newest", map[string]int64{"Display.Driver.A": 10, "Display.Driver.B": 20, "Other.Thing": 30}, "Display.Driver.B"},
		{"newest first", map[string]int64{"Display.Driver.A": 20, "Display.Driver.B": 10}, "Display.Driver.A"},
		{"tie", map[string]int64{"Display.Driver.A": 20, "Display.Driver.B": 20, "Display.Driver.C": 10}, "Display.Driver.B"},
		{"single", map[string]int64{"Display.Driver": 1, "Other.Thing": 30}, "Display.Driver"},
	} {
		t.Run(c.name, func(t *testing.T) {
			var installs []testInstall
			for dir := range c.ctimes {
				installs = append(installs, testInstall{dir: dir, file: nvi("1.0")})
			}
			l := NewLocalReader(testFs(t, installs...), zerolog.Nop())
			l.ctime = func(_ afero.Fs, path string, _ os.FileInfo) time.Time {
				return time.Unix(c.ctimes[filepath.Base(path)], 0)
			}

			info, err := l.ReadLocalVersion(testBase, "Display.Driver", "DisplayDriver.nvi")
			require.NoError(t, err)
			assert.Equal(t, c.out, filepath.Base(filepath.Dir(info.SourcePath)))
		})
	}
}

func TestReadLocalVersionErrors(t *testing.T) {
	for _, c := range []struct {
		name     string
		base     string
		installs []testInstall
		err      error
	}{
		{"no base", "/does/not/exist", nil, ErrNoInstallationFound},
		{"empty base", testBase, nil, ErrNoInstallationFound},
		{"no match", testBase, []testInstall{{"Other.Thing", 30, nvi("576.02")}}, ErrNoInstallationFound},
		{"no file", testBase, []testInstall{{"Display.Driver.A", 10, nvi("576.02")}, {"Display.Driver.B", 20, ""}}, ErrMetadataFileMissing},
		{"no tag", testBase, []testInstall{{"Display.Driver.A", 10, `<nvi><strings><string name="title" value="x"/></strings></nvi>`}}, ErrVersionTagNotFound},
		{"wrong attribute order", testBase, []testInstall{{"Display.Driver.A", 10, `<string value="576.02" name="version"/>`}}, ErrVersionTagNotFound},
		{"bad version", testBase, []testInstall{{"Display.Driver.A", 10, `<string name="version" value="576.x"/>`}}, ErrInvalidVersionFormat},
	} {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewLocalReader(testFs(t, c.installs...), zerolog.Nop()).ReadLocalVersion(c.base, "Display.Driver", "DisplayDriver.nvi")
			require.Error(t, err)
			assert.ErrorIs(t, err, c.err)
			assert.Equal(t, ErrorKind(c.err), ErrorKind(err))
		})
	}
}

func TestReadLocalVersionDirectoryAsFile(t *testing.T) {
	fs := testFs(t, testInstall{"Display.Driver.A", 10, ""})
	require.NoError(t, fs.MkdirAll(filepath.Join(testBase, "Display.Driver.A", "DisplayDriver.nvi"), 0755))

	_, err := NewLocalReader(fs, zerolog.Nop()).ReadLocalVersion(testBase, "Display.Driver", "DisplayDriver.nvi")
	assert.ErrorIs(t, err, ErrMetadataFileMissing)
}

func TestReadLocalVersionEncoding(t *testing.T) {
	for _, c := range []struct {
		name string
		buf  []byte
	}{
		{"plain", []byte(nvi("576.02"))},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, nvi("576.02")...)},
		{"utf16le bom", utf16le(nvi("576.02"))},
	} {
		t.Run(c.name, func(t *testing.T) {
			fs := testFs(t, testInstall{"Display.Driver.A", 10, ""})
			require.NoError(t, afero.WriteFile(fs, filepath.Join(testBase, "Display.Driver.A", "DisplayDriver.nvi"), c.buf, 0644))

			info, err := NewLocalReader(fs, zerolog.Nop()).ReadLocalVersion(testBase, "Display.Driver", "DisplayDriver.nvi")
			require.NoError(t, err)
			assert.Equal(t, "576.02", info.VersionString)
		})
	}
}

func utf16le(s string) []byte {
	b := []byte{0xFF, 0xFE}
	for _, r := range s {
		b = append(b, byte(r), byte(r>>8))
	}
	return b
}

func TestReadLocalVersionSymlink(t *testing.T) {
	base, target := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "DisplayDriver.nvi"), []byte(nvi("576.02")), 0644))

	if err := os.Symlink(target, filepath.Join(base, "Display.Driver.Link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(target, "missing"), filepath.Join(base, "Display.Driver.Broken")))
	require.NoError(t, os.Symlink(filepath.Join(target, "DisplayDriver.nvi"), filepath.Join(base, "Display.Driver.File")))

	info, err := NewLocalReader(afero.NewOsFs(), zerolog.Nop()).ReadLocalVersion(base, "Display.Driver", "DisplayDriver.nvi")
	require.NoError(t, err)
	assert.Equal(t, "576.02", info.VersionString)
	assert.Equal(t, filepath.Join(base, "Display.Driver.Link", "DisplayDriver.nvi"), info.SourcePath)
}
