package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Notification is shown to the user by a Notifier.
type Notification struct {
	Title       string
	Body        string
	ActionLabel string // optional
	ActionURL   string // optional
}

// Notifier shows a notification to the user.
type Notifier interface {
	Notify(n Notification) error
}

// Notification formats the notice for the user.
func (u *UpdateNotice) Notification() Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %s\n", u.CurrentVersion)
	fmt.Fprintf(&b, "Latest version : %s", u.LatestVersion)
	if d := u.Driver; d.Name != "" || d.ReleaseDate != "" {
		b.WriteString("\n")
		switch {
		case d.Name != "" && d.ReleaseDate != "":
			fmt.Fprintf(&b, "%s (%s)", d.Name, d.ReleaseDate)
		case d.Name != "":
			b.WriteString(d.Name)
		default:
			fmt.Fprintf(&b, "Released %s", d.ReleaseDate)
		}
	}
	return Notification{
		Title:       "A newer driver is available!",
		Body:        b.String(),
		ActionLabel: "Open link to driver",
		ActionURL:   u.DownloadURL,
	}
}

// ConsoleNotifier writes notifications as text.
type ConsoleNotifier struct {
	w io.Writer
}

func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w}
}

func (c *ConsoleNotifier) Notify(n Notification) error {
	var b strings.Builder
	b.WriteString(n.Title)
	b.WriteString("\n")
	if n.Body != "" {
		b.WriteString(n.Body)
		b.WriteString("\n")
	}
	if n.ActionURL != "" {
		if n.ActionLabel != "" {
			fmt.Fprintf(&b, "%s: ", n.ActionLabel)
		}
		b.WriteString(n.ActionURL)
		b.WriteString("\n")
	}
	_, err := io.WriteString(c.w, b.String())
	return err
}

// FallbackNotifier tries each notifier in order until one succeeds.
type FallbackNotifier struct {
	n   []Notifier
	log zerolog.Logger
}

func NewFallbackNotifier(log zerolog.Logger, n ...Notifier) *FallbackNotifier {
	return &FallbackNotifier{n, log}
}

func (f *FallbackNotifier) Notify(n Notification) error {
	var errs []string
	for i, x := range f.n {
		err := callNotifier(x, n)
		if err == nil {
			return nil
		}
		f.log.Warn().
			Str("what", "notify").
			Str("notifier", fmt.Sprintf("%T", x)).
			Err(err).
			Bool("fallback", i+1 < len(f.n)).
			Msg("notifier failed")
		errs = append(errs, err.Error())
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("all notifiers failed: %s", strings.Join(errs, "; "))
}

// callNotifier calls n, converting a panic into an error.
func callNotifier(n Notifier, msg Notification) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in notifier: %v", p)
		}
	}()
	return n.Notify(msg)
}

// NewNotifier creates the notifier for a notification style (auto, toast,
// dialog, console, telegram, or none). A nil Notifier is returned for none.
// Anything other than console falls back to it if it fails.
func NewNotifier(c Config, stdout io.Writer, log zerolog.Logger) (Notifier, error) {
	var n Notifier
	switch c.Notify {
	case "none":
		return nil, nil
	case "console":
		return NewConsoleNotifier(stdout), nil
	case "auto":
		n = defaultNotifier(stdout)
		if _, ok := n.(*ConsoleNotifier); ok {
			return n, nil
		}
	case "telegram":
		n = NewTelegramNotifier(NewTelegram(&http.Client{Timeout: c.Timeout}, c.Telegram.Token), c.Telegram.Chat)
	case "toast", "dialog":
		var err error
		if n, err = platformNotifier(c.Notify); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown notification style %q", c.Notify)
	}
	return NewFallbackNotifier(log, n, NewConsoleNotifier(stdout)), nil
}
