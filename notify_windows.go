//go:build windows

package main

import (
	"fmt"
	"io"

	"github.com/go-toast/toast"
	"github.com/pkg/browser"
	"golang.org/x/sys/windows"
)

const (
	appID = "NVIDIA Driver Notifier"
	idYes = 6 // IDYES
)

// ToastNotifier shows a Windows toast notification.
type ToastNotifier struct {
	AppID string
}

func (t *ToastNotifier) Notify(n Notification) error {
	tn := toast.Notification{
		AppID:   t.AppID,
		Title:   n.Title,
		Message: n.Body,
		Audio:   toast.Default,
	}
	if n.ActionURL != "" {
		tn.ActivationType = "protocol"
		tn.ActivationArguments = n.ActionURL
		tn.Actions = []toast.Action{{
			Type:      "protocol",
			Label:     n.ActionLabel,
			Arguments: n.ActionURL,
		}}
	}
	if err := tn.Push(); err != nil {
		return fmt.Errorf("show toast: %w", err)
	}
	return nil
}

// DialogNotifier shows a message box. If the notification has an action, the
// user is asked whether to open it in the default browser.
type DialogNotifier struct {
	open func(string) error
}

func (d *DialogNotifier) Notify(n Notification) error {
	text, flags := n.Body, uint32(windows.MB_OK|windows.MB_ICONINFORMATION|windows.MB_SETFOREGROUND|windows.MB_TOPMOST)
	if n.ActionURL != "" {
		text += "\n\n" + n.ActionLabel + "?\n" + n.ActionURL
		flags = windows.MB_YESNO | windows.MB_ICONINFORMATION | windows.MB_SETFOREGROUND | windows.MB_TOPMOST
	}

	textp, err := windows.UTF16PtrFromString(text)
	if err != nil {
		return fmt.Errorf("show dialog: %w", err)
	}
	titlep, err := windows.UTF16PtrFromString(n.Title)
	if err != nil {
		return fmt.Errorf("show dialog: %w", err)
	}

	r, err := windows.MessageBox(0, textp, titlep, flags)
	if r == 0 {
		return fmt.Errorf("show dialog: %w", err)
	}
	if r == idYes && n.ActionURL != "" {
		if err := d.open(n.ActionURL); err != nil {
			return fmt.Errorf("open %q: %w", n.ActionURL, err)
		}
	}
	return nil
}

func defaultNotifier(_ io.Writer) Notifier {
	return &ToastNotifier{AppID: appID}
}

func platformNotifier(style string) (Notifier, error) {
	switch style {
	case "toast":
		return &ToastNotifier{AppID: appID}, nil
	case "dialog":
		return &DialogNotifier{open: browser.OpenURL}, nil
	}
	return nil, fmt.Errorf("unknown notification style %q", style)
}
