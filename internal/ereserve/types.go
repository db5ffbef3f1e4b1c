// Package ereserve talks to the e-reserve read-kernel APIs over the bridged
// HTTP session: chapter list, per-chapter page manifests, and the detail
// page itself.
package ereserve

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tessiv/ereserve-dl/internal/util"
)

// ErrMalformedResponse is returned when a kernel API response is unusable:
// non-2xx status, a body that is not JSON, or a chapter list without its
// data field.
var ErrMalformedResponse = errors.New("malformed api response")

// ErrMissingViewerContext is returned when the post-click navigation never
// produced a URL the viewer book id could be parsed from.
var ErrMissingViewerContext = errors.New("missing viewer context")

// Chapter is one entry of the chapter-list API. ID keys the page-manifest
// call for that chapter. Payload field matching is case-insensitive (EMID
// and emid both decode), and a numeric EMID decodes to its digit string.
type Chapter struct {
	ID   string
	Name string
}

func (c *Chapter) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"EMID"`
		Name string          `json:"EFRAGMENTNAME"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	c.ID = scalarString(raw.ID)
	c.Name = raw.Name
	return nil
}

// scalarString renders a JSON scalar as text: strings unquoted, numbers as
// their literal digits, anything else empty.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// DisplayName is the chapter name, falling back to the id when the API
// returned none.
func (c Chapter) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// DirName is the per-chapter download directory name.
func (c Chapter) DirName() string {
	name := util.SanitizeName(c.DisplayName())
	if name == "" {
		name = util.SanitizeName(c.ID)
	}
	if name == "" {
		name = "chapter"
	}
	return name
}

// PageRef locates one page image in server storage. Manifest order is
// in-document page order.
type PageRef struct {
	Key string `json:"hfsKey"`
}

// ViewerBookID extracts the session-scoped book id from the viewer URL
// (its trailing path segment).
func ViewerBookID(viewerURL string) (string, error) {
	seg := util.LastPathSegment(viewerURL)
	if seg == "" {
		return "", fmt.Errorf("%w: cannot extract viewer book id from %q", ErrMissingViewerContext, viewerURL)
	}
	return seg, nil
}
