package main

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
)

// Telegram is a minimal Telegram Bot API client.
type Telegram struct {
	c    *http.Client
	t    string
	base string
}

func NewTelegram(c *http.Client, token string) *Telegram {
	tc := &Telegram{c: c, t: token, base: "https://api.telegram.org"}
	if tc.c == nil {
		tc.c = http.DefaultClient
	}
	return tc
}

func (tc *Telegram) SendMessage(id, text string) error {
	if err := tc.api("sendMessage", url.Values{
		"chat_id":                  {id},
		"text":                     {text},
		"parse_mode":               {"HTML"},
		"disable_web_page_preview": {"true"},
	}); err != nil {
		return fmt.Errorf("send message to %#v: %w", id, err)
	}
	return nil
}

func (tc *Telegram) api(method string, params url.Values) error {
	var p string
	if params != nil {
		p = "?" + params.Encode()
	}

	req, err := http.NewRequest("GET", tc.base+"/bot"+tc.t+"/"+method+p, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := tc.c.Do(req)
	if err != nil {
		// the url contains the token
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var obj struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return fmt.Errorf("read response json: %w", err)
	} else if !obj.OK {
		return fmt.Errorf("api error: %s: %s (%d)", method, obj.Description, obj.ErrorCode)
	}
	return nil
}

// TelegramNotifier sends notifications to a Telegram chat.
type TelegramNotifier struct {
	t    *Telegram
	chat string
}

func NewTelegramNotifier(t *Telegram, chat string) *TelegramNotifier {
	return &TelegramNotifier{t, chat}
}

func (t *TelegramNotifier) Notify(n Notification) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(n.Title))
	if n.Body != "" {
		fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(n.Body))
	}
	if n.ActionURL != "" {
		label := n.ActionLabel
		if label == "" {
			label = n.ActionURL
		}
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(n.ActionURL), html.EscapeString(label))
	}
	return t.t.SendMessage(t.chat, strings.TrimSuffix(b.String(), "\n"))
}
