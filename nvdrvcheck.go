// Command nvdrvcheck checks whether a newer NVIDIA display driver is available
// than the installed one, and shows a notification linking to it if so.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const (
	exitOK     = 0
	exitFailed = 1 // the check could not be completed
	exitUsage  = 2
)

func main() {
	os.Exit(run(afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	flags := NewFlagSet()
	flags.SetOutput(stderr)

	c, err := LoadConfig(fs, flags, args)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	} else if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	log := newLogger(c, stderr)

	target, err := c.Target()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	n, err := NewNotifier(c, stdout, log)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	start := time.Now()
	d := NewDecider(
		NewLocalReader(fs, log),
		NewFetcher(&http.Client{Timeout: c.Timeout}, log),
		n, target, log,
	).Decide(context.Background())
	duration := time.Since(start)

	report(log, d)

	if c.MetricsFile != "" {
		if err := NewRunMetrics(d, start, duration).WriteFile(fs, c.MetricsFile, stdout); err != nil {
			log.Error().Err(err).Str("file", c.MetricsFile).Msg("could not write metrics")
		}
	}

	if d.State == Failed {
		return exitFailed
	}
	return exitOK
}

func newLogger(c Config, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if c.Verbose {
		level = zerolog.DebugLevel
	}
	if c.LogLevel != "" {
		if l, err := zerolog.ParseLevel(c.LogLevel); err == nil {
			level = l
		}
	}
	if !c.LogJSON {
		_, isFile := w.(*os.File)
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp, NoColor: !isFile}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func report(log zerolog.Logger, d Decision) {
	switch d.State {
	case NotifyNewer:
		log.Info().
			Str("what", "decide").
			Str("current", d.Notice.CurrentVersion).
			Str("latest", d.Notice.LatestVersion).
			Str("url", d.Notice.DownloadURL).
			Str("released", d.Remote.ReleaseDate).
			Str("size", d.Remote.DownloadSize).
			Str("summary", d.Remote.Summary).
			Msg("a newer driver is available")
		if d.NotifyErr != nil {
			log.Error().
				Str("what", "notify").
				Err(d.NotifyErr).
				Msg("could not show notification")
		}
	case ReportUpToDate:
		log.Info().
			Str("what", "decide").
			Str("current", d.Local.VersionString).
			Str("latest", d.Remote.VersionString).
			Msg("driver is up to date")
	case Failed:
		e := log.Warn()
		if d.Reason == Unknown {
			e = log.Error()
		}
		e.Str("what", "decide").
			Str("reason", d.Reason.String()).
			Str("kind", ErrorKind(d.Err)).
			Err(d.Err).
			Msg("driver check failed")
	}
}
