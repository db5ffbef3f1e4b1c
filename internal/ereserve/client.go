package ereserve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Form field names of the read-kernel APIs.
const (
	tokenField   = "SCANID"
	chapterField = "EMID"
	bookField    = "BOOKID"
)

const snippetLimit = 500

type Client struct {
	http *http.Client

	chaptersAPI string
	chapterAPI  string

	// kernel is the bridged session cookie value, sent back as the
	// botureadkernel header on every call.
	kernel string

	// referer is the viewer URL the click landed on. Origin and referer
	// headers derive from it per call.
	referer string

	acceptLanguage string

	log interface {
		Debugf(string, ...any)
		Errorf(string, ...any)
	}
}

type ClientOptions struct {
	ChaptersAPI    string
	ChapterAPI     string
	Kernel         string
	Referer        string
	AcceptLanguage string
	Log            interface {
		Debugf(string, ...any)
		Errorf(string, ...any)
	}
}

func NewClient(h *http.Client, opts ClientOptions) *Client {
	return &Client{
		http:           h,
		chaptersAPI:    opts.ChaptersAPI,
		chapterAPI:     opts.ChapterAPI,
		kernel:         opts.Kernel,
		referer:        opts.Referer,
		acceptLanguage: opts.AcceptLanguage,
		log:            opts.Log,
	}
}

// ChapterList fetches the ordered chapter list for the scanned book. Any
// unusable response is fatal: a wrong chapter list would corrupt the whole
// document.
func (c *Client) ChapterList(ctx context.Context, scanID string) ([]Chapter, error) {
	body, err := c.postForm(ctx, c.chaptersAPI, url.Values{tokenField: {scanID}})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data == nil {
		return nil, fmt.Errorf("%w: chapters JSON missing list field data, body: %s",
			ErrMalformedResponse, snippet(body))
	}

	var raw []Chapter
	if err := json.Unmarshal(payload.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: chapters data is not a list, body: %s",
			ErrMalformedResponse, snippet(body))
	}

	chapters := make([]Chapter, 0, len(raw))
	for _, ch := range raw {
		if ch.ID == "" {
			continue
		}
		chapters = append(chapters, ch)
	}

	return chapters, nil
}

// PageManifest fetches the ordered page refs for one chapter. A manifest
// whose nested list is missing or malformed yields zero refs instead of an
// error: one broken chapter should not abort the whole book.
func (c *Client) PageManifest(ctx context.Context, chapterID, viewerBookID string) ([]PageRef, error) {
	body, err := c.postForm(ctx, c.chapterAPI, url.Values{
		chapterField: {chapterID},
		bookField:    {viewerBookID},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data struct {
			JGPS []PageRef `json:"JGPS"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.errorf("chapter %s: manifest not usable, skipping: %s\n", chapterID, snippet(body))
		return nil, nil
	}

	refs := make([]PageRef, 0, len(payload.Data.JGPS))
	for _, r := range payload.Data.JGPS {
		if r.Key == "" {
			continue
		}
		refs = append(refs, r)
	}

	return refs, nil
}

// postForm issues one authenticated form-encoded POST and validates the
// response down to "is JSON". No retries: auth drift or site changes are
// not fixable by retrying.
func (c *Client) postForm(ctx context.Context, apiURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	for k, v := range c.apiHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api %s: %w", apiURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.debugf("Warning: failed to close response body for %s: %v\n", apiURL, cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("api %s: read body: %w", apiURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d from %s, body: %s",
			ErrMalformedResponse, resp.StatusCode, apiURL, snippet(body))
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: not JSON from %s, body: %s",
			ErrMalformedResponse, apiURL, snippet(body))
	}

	return body, nil
}

// apiHeaders is rebuilt per call: referer (and the origin derived from it)
// changes with the navigation that preceded the call.
func (c *Client) apiHeaders() map[string]string {
	return map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"Accept-Language":  c.acceptLanguage,
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		"Origin":           originOf(c.referer, c.chaptersAPI),
		"Referer":          c.referer,
		"X-Requested-With": "XMLHttpRequest",
		"botureadkernel":   c.kernel,
	}
}

// originOf returns scheme://host of rawURL, falling back to the origin of
// fallbackURL when rawURL does not parse to an absolute URL.
func originOf(rawURL, fallbackURL string) string {
	if o, ok := parseOrigin(rawURL); ok {
		return o
	}
	if o, ok := parseOrigin(fallbackURL); ok {
		return o
	}
	return ""
}

func parseOrigin(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

func (c *Client) debugf(format string, args ...any) {
	if c.log != nil {
		c.log.Debugf(format, args...)
	}
}

func (c *Client) errorf(format string, args ...any) {
	if c.log != nil {
		c.log.Errorf(format, args...)
	}
}

func snippet(b []byte) string {
	s := string(b)
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return strings.Join(strings.Fields(s), " ")
}
