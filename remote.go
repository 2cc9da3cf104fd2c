package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
)

// DefaultEndpoint is the driver lookup service used by the NVIDIA driver
// download page.
const DefaultEndpoint = "https://gfwsl.geforce.com/services_toolkit/services/com/nvidia/services/AjaxDriverService.php"

const userAgent = "nvdrvcheck (github.com/pgaskin/nvdrvcheck)"

var (
	ErrNetwork                 = errors.New("network error")
	ErrRemoteRequestFailed     = errors.New("remote request failed")
	ErrUnexpectedResponseShape = errors.New("unexpected response shape")
)

// StatusError is returned for a non-2xx response from the lookup service.
type StatusError struct {
	StatusCode int
	Status     string
}

func (err *StatusError) Error() string {
	return fmt.Sprintf("%s: response status %s", ErrRemoteRequestFailed, err.Status)
}

func (err *StatusError) Unwrap() error {
	return ErrRemoteRequestFailed
}

// Query selects the driver to look up. The IDs are the ones used by the
// selection form on the NVIDIA driver download page.
type Query struct {
	Endpoint        string `mapstructure:"endpoint"`
	ProductFamilyID int    `mapstructure:"psid"`    // product series (e.g. 120 for GeForce RTX 40 Series)
	ProductModelID  int    `mapstructure:"pfid"`    // product (e.g. 942 for GeForce RTX 4070)
	OSID            int    `mapstructure:"os"`      // e.g. 57 for Windows 10 64-bit
	LanguageCode    int    `mapstructure:"lang"`    // windows LCID (e.g. 1033 for en-US)
	Certification   int    `mapstructure:"whql"`    // 1 for WHQL-certified only
	ResultCount     int    `mapstructure:"results"` // only the first result is used
}

// DefaultQuery returns the query for the latest WHQL Game Ready driver for a
// GeForce RTX 4070 on 64-bit Windows 10/11 in English.
func DefaultQuery() Query {
	return Query{
		Endpoint:        DefaultEndpoint,
		ProductFamilyID: 120,
		ProductModelID:  942,
		OSID:            57,
		LanguageCode:    1033,
		Certification:   1,
		ResultCount:     1,
	}
}

// URL builds the lookup URL. The parameters other than the ones from the
// query are the ones the download page sends for a non-beta DCH driver.
func (q Query) URL() (string, error) {
	u, err := url.Parse(q.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", q.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("parse endpoint %q: unsupported scheme %q", q.Endpoint, u.Scheme)
	}
	v := u.Query()
	v.Set("func", "DriverManualLookup")
	v.Set("psid", strconv.Itoa(q.ProductFamilyID))
	v.Set("pfid", strconv.Itoa(q.ProductModelID))
	v.Set("osID", strconv.Itoa(q.OSID))
	v.Set("languageCode", strconv.Itoa(q.LanguageCode))
	v.Set("beta", "0")
	v.Set("isWHQL", strconv.Itoa(q.Certification))
	v.Set("dltype", "-1")
	v.Set("dch", "1")
	v.Set("upCRD", "0")
	v.Set("qnf", "0")
	v.Set("ctk", "null")
	v.Set("sort1", "1")
	v.Set("numberOfResults", strconv.Itoa(q.ResultCount))
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// DriverRecord is a driver release from the lookup service.
type DriverRecord struct {
	Version       Version
	VersionString string // as returned by the service
	DriverID      string

	// optional, informational only
	Name         string
	ReleaseDate  string
	DownloadURL  string
	DownloadSize string
	Summary      string
}

// Fetcher looks up the latest driver release.
type Fetcher struct {
	c   *http.Client
	log zerolog.Logger
}

// NewFetcher creates a new Fetcher. The request timeout is the client's
// Timeout.
func NewFetcher(c *http.Client, log zerolog.Logger) *Fetcher {
	if c == nil {
		c = http.DefaultClient
	}
	return &Fetcher{c: c, log: log}
}

// FetchLatestVersion makes a single request to endpointURL and returns the
// first driver in the response.
func (f *Fetcher) FetchLatestVersion(ctx context.Context, endpointURL string) (DriverRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return DriverRecord{}, fmt.Errorf("create request: %w: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	f.log.Debug().
		Str("what", "remote").
		Str("url", endpointURL).
		Msg("looking up latest driver")

	resp, err := f.c.Do(req)
	if err != nil {
		return DriverRecord{}, fmt.Errorf("do request: %w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DriverRecord{}, &StatusError{resp.StatusCode, resp.Status}
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return DriverRecord{}, fmt.Errorf("read response: %w: %v", ErrNetwork, err)
	}

	d, err := parseDriverLookup(buf)
	if err != nil {
		return DriverRecord{}, err
	}

	f.log.Debug().
		Str("what", "remote").
		Str("version", d.VersionString).
		Str("id", d.DriverID).
		Str("name", d.Name).
		Str("released", d.ReleaseDate).
		Str("download", d.DownloadURL).
		Msg("got latest driver")

	return d, nil
}

func parseDriverLookup(buf []byte) (DriverRecord, error) {
	var obj struct {
		IDS []struct {
			DownloadInfo *struct {
				ID                  jsonString `json:"ID"`
				Version             jsonString `json:"Version"`
				Name                jsonString `json:"Name"`
				ReleaseDateTime     jsonString `json:"ReleaseDateTime"`
				DownloadURL         jsonString `json:"DownloadURL"`
				DownloadURLFileSize jsonString `json:"DownloadURLFileSize"`
				Overview            jsonString `json:"Overview"`
			} `json:"downloadInfo"`
		} `json:"IDS"`
	}
	if err := json.Unmarshal(buf, &obj); err != nil {
		return DriverRecord{}, fmt.Errorf("%w: parse response json: %v", ErrUnexpectedResponseShape, err)
	}
	if len(obj.IDS) == 0 {
		return DriverRecord{}, fmt.Errorf("%w: no drivers in response", ErrUnexpectedResponseShape)
	}

	di := obj.IDS[0].DownloadInfo
	switch {
	case di == nil:
		return DriverRecord{}, fmt.Errorf("%w: IDS[0].downloadInfo missing", ErrUnexpectedResponseShape)
	case di.Version == "":
		return DriverRecord{}, fmt.Errorf("%w: IDS[0].downloadInfo.Version missing", ErrUnexpectedResponseShape)
	case di.ID == "":
		return DriverRecord{}, fmt.Errorf("%w: IDS[0].downloadInfo.ID missing", ErrUnexpectedResponseShape)
	}

	v, err := ParseVersion(string(di.Version))
	if err != nil {
		return DriverRecord{}, fmt.Errorf("%w: IDS[0].downloadInfo.Version: %w", ErrUnexpectedResponseShape, err)
	}

	return DriverRecord{
		Version:       v,
		VersionString: string(di.Version),
		DriverID:      string(di.ID),
		Name:          unescape(string(di.Name)),
		ReleaseDate:   unescape(string(di.ReleaseDateTime)),
		DownloadURL:   string(di.DownloadURL),
		DownloadSize:  unescape(string(di.DownloadURLFileSize)),
		Summary:       summarizeHTML(unescape(string(di.Overview)), 200),
	}, nil
}

// jsonString is a string which may also be encoded as a JSON number.
type jsonString string

func (s *jsonString) UnmarshalJSON(buf []byte) error {
	buf = bytes.TrimSpace(buf)
	switch {
	case bytes.Equal(buf, []byte("null")):
		return nil
	case len(buf) != 0 && buf[0] == '"':
		var v string
		if err := json.Unmarshal(buf, &v); err != nil {
			return err
		}
		*s = jsonString(v)
		return nil
	default:
		var v json.Number
		if err := json.Unmarshal(buf, &v); err != nil {
			return fmt.Errorf("expected string or number, got %s", buf)
		}
		*s = jsonString(v)
		return nil
	}
}

// unescape decodes the URL-encoded text fields of the lookup response.
func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}
