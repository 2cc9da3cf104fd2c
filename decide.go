package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// LocalVersionReader reads the installed driver version.
type LocalVersionReader interface {
	ReadLocalVersion(basePath, namePrefix, targetFileName string) (LocalDriverInfo, error)
}

// RemoteVersionFetcher looks up the latest driver.
type RemoteVersionFetcher interface {
	FetchLatestVersion(ctx context.Context, endpointURL string) (DriverRecord, error)
}

// State is a step of a driver check.
type State int

const (
	Start State = iota
	LocalLookup
	RemoteLookup
	CompareVersions
	NotifyNewer    // terminal
	ReportUpToDate // terminal
	Failed         // terminal
)

func (s State) String() string {
	switch s {
	case Start:
		return "Start"
	case LocalLookup:
		return "LocalLookup"
	case RemoteLookup:
		return "RemoteLookup"
	case CompareVersions:
		return "Compare"
	case NotifyNewer:
		return "NotifyNewer"
	case ReportUpToDate:
		return "ReportUpToDate"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reason is why a check Failed.
type Reason int

const (
	NoReason Reason = iota
	LocalUnavailable
	RemoteUnavailable
	Unknown
)

func (r Reason) String() string {
	switch r {
	case NoReason:
		return ""
	case LocalUnavailable:
		return "LocalUnavailable"
	case RemoteUnavailable:
		return "RemoteUnavailable"
	case Unknown:
		return "Unknown"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// ErrorKind returns the name of the kind of a driver check error, or Unknown
// if it isn't one of them.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoInstallationFound):
		return "NoInstallationFound"
	case errors.Is(err, ErrMetadataFileMissing):
		return "MetadataFileMissing"
	case errors.Is(err, ErrVersionTagNotFound):
		return "VersionTagNotFound"
	case errors.Is(err, ErrUnexpectedResponseShape):
		return "UnexpectedResponseShape"
	case errors.Is(err, ErrRemoteRequestFailed):
		return "RemoteRequestFailed"
	case errors.Is(err, ErrNetwork):
		return "NetworkError"
	case errors.Is(err, ErrInvalidVersionFormat):
		return "InvalidVersionFormat"
	}
	return "Unknown"
}

// Target is what a Decider checks.
type Target struct {
	BasePath   string // directory containing the installer folders
	NamePrefix string // installer folder name prefix
	TargetFile string // metadata file in the installer folder
	LookupURL  string // fully-formed driver lookup URL
	DetailsURL string // download page, with %s replaced by the driver ID
}

// DownloadURL returns the download page for a driver.
func (t Target) DownloadURL(driverID string) string {
	return strings.ReplaceAll(t.DetailsURL, "%s", url.PathEscape(driverID))
}

// UpdateNotice is what the user is notified about when a newer driver is
// available.
type UpdateNotice struct {
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	Driver         DriverRecord
}

// Decision is the outcome of a driver check.
type Decision struct {
	State  State // NotifyNewer, ReportUpToDate, or Failed
	Reason Reason
	Err    error

	Local      LocalDriverInfo // set once LocalLookup succeeds
	Remote     DriverRecord    // set once RemoteLookup succeeds
	Comparison Comparison

	Notice    *UpdateNotice
	Notified  bool  // whether the notifier was called
	NotifyErr error // from the notifier
}

// Decider checks whether a newer driver is available, and notifies about it if
// so. A Decider does not retry anything.
type Decider struct {
	local  LocalVersionReader
	remote RemoteVersionFetcher
	notify Notifier // may be nil
	target Target
	log    zerolog.Logger
}

func NewDecider(local LocalVersionReader, remote RemoteVersionFetcher, notify Notifier, target Target, log zerolog.Logger) *Decider {
	return &Decider{local, remote, notify, target, log}
}

// Decide runs a single check. The remote lookup is only done if the local
// version could be read.
func (d *Decider) Decide(ctx context.Context) (res Decision) {
	state := Start
	enter := func(s State) {
		d.log.Debug().
			Str("what", "decide").
			Str("from", state.String()).
			Str("to", s.String()).
			Msg("state transition")
		state = s
	}
	fail := func(r Reason, err error) Decision {
		if ErrorKind(err) == "Unknown" {
			r = Unknown
		}
		enter(Failed)
		res.State, res.Reason, res.Err = Failed, r, err
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res = fail(Unknown, fmt.Errorf("panic in %s: %v", state, p))
		}
	}()

	enter(LocalLookup)
	local, err := d.local.ReadLocalVersion(d.target.BasePath, d.target.NamePrefix, d.target.TargetFile)
	if err != nil {
		return fail(LocalUnavailable, fmt.Errorf("read local driver version: %w", err))
	}
	res.Local = local

	enter(RemoteLookup)
	remote, err := d.remote.FetchLatestVersion(ctx, d.target.LookupURL)
	if err != nil {
		return fail(RemoteUnavailable, fmt.Errorf("fetch latest driver version: %w", err))
	}
	res.Remote = remote

	enter(CompareVersions)
	res.Comparison = Compare(local.Version, remote.Version)
	d.log.Debug().
		Str("what", "decide").
		Str("local", local.VersionString).
		Str("remote", remote.VersionString).
		Str("result", res.Comparison.String()).
		Msg("compared versions")

	if res.Comparison != Newer {
		enter(ReportUpToDate)
		res.State = ReportUpToDate
		return res
	}

	res.Notice = &UpdateNotice{
		CurrentVersion: local.VersionString,
		LatestVersion:  remote.VersionString,
		DownloadURL:    d.target.DownloadURL(remote.DriverID),
		Driver:         remote,
	}
	enter(NotifyNewer)
	res.State = NotifyNewer
	if d.notify != nil {
		res.Notified = true
		res.NotifyErr = callNotifier(d.notify, res.Notice.Notification())
	}
	return res
}
