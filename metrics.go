package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/afero"
)

// RunMetrics describes a driver check for the node_exporter textfile
// collector.
type RunMetrics struct {
	d        Decision
	start    time.Time
	duration time.Duration
}

func NewRunMetrics(d Decision, start time.Time, duration time.Duration) *RunMetrics {
	return &RunMetrics{d, start, duration}
}

func (r *RunMetrics) WritePrometheus(w io.Writer) {
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}
	m := metrics.NewSet()
	m.NewGauge(`nvdrvcheck_check_success`, func() float64 { return b2f(r.d.State != Failed) })
	m.NewGauge(`nvdrvcheck_update_available`, func() float64 { return b2f(r.d.State == NotifyNewer) })
	if r.d.State == Failed {
		m.NewGauge(`nvdrvcheck_check_failed{reason="`+r.d.Reason.String()+`",kind="`+ErrorKind(r.d.Err)+`"}`, func() float64 { return 1 })
	}
	if v := r.d.Local.VersionString; v != "" {
		m.NewGauge(`nvdrvcheck_local_version_info{version="`+labelValue(v)+`"}`, func() float64 { return 1 })
	}
	if v := r.d.Remote.VersionString; v != "" {
		m.NewGauge(`nvdrvcheck_latest_version_info{version="`+labelValue(v)+`",id="`+labelValue(r.d.Remote.DriverID)+`"}`, func() float64 { return 1 })
	}
	m.NewGauge(`nvdrvcheck_check_duration_seconds`, func() float64 { return r.duration.Seconds() })
	m.NewGauge(`nvdrvcheck_last_run_timestamp_seconds`, func() float64 { return float64(r.start.Unix()) })
	if r.d.Notified {
		if r.d.NotifyErr == nil {
			m.NewCounter(`nvdrvcheck_notifications_sent_total`).Set(1)
			m.NewCounter(`nvdrvcheck_notifications_errored_total`).Set(0)
		} else {
			m.NewCounter(`nvdrvcheck_notifications_sent_total`).Set(0)
			m.NewCounter(`nvdrvcheck_notifications_errored_total`).Set(1)
		}
	}
	m.WritePrometheus(w)
}

// WriteFile writes the metrics to fn, replacing it atomically so the textfile
// collector never reads a partial file. If fn is -, the metrics are written to
// stdout instead.
func (r *RunMetrics) WriteFile(fs afero.Fs, fn string, stdout io.Writer) error {
	if fn == "-" {
		r.WritePrometheus(stdout)
		return nil
	}
	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	tmp := fn + ".tmp"
	if err := afero.WriteFile(fs, tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := fs.Rename(tmp, fn); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// labelValue replaces characters which would need escaping in a label value.
func labelValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
