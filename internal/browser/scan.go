package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrScanIDNotFound is returned when the discovery deadline elapses before
// any candidate context exposed a scan token.
var ErrScanIDNotFound = errors.New("scan id not found")

// Target is one browser context (a page or a new tab) that may expose the
// scan token. Token probes are single-shot: they report what is in the DOM
// right now and never block.
type Target interface {
	ID() string
	URL() string
	Token() (string, bool)
}

// Discovery polls a growing set of browser contexts for the scan token
// after the viewer button has been clicked. The click may navigate the
// original page or spawn a new tab; both are handled by the same shared
// deadline.
type Discovery struct {
	// ListTargets returns the currently open contexts.
	ListTargets func() []Target

	// Original is the page the click was dispatched on.
	Original Target

	// Before holds the IDs of contexts open prior to the click.
	Before map[string]bool

	Interval time.Duration
	Timeout  time.Duration

	Log interface{ Debugf(string, ...any) }
}

type state int

const (
	watchingForNewTab state = iota
	pollingKnownContexts
)

// Run drives the discovery until a token is found or the deadline elapses.
// It returns the token and the URL of the context that exposed it.
func (d *Discovery) Run(ctx context.Context) (string, string, error) {
	interval := d.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	deadline := time.Now().Add(timeout)
	seen := map[string]bool{}

	st := watchingForNewTab
	var candidates []Target

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		switch st {
		case watchingForNewTab:
			added := d.newTargets()
			if len(added) > 0 {
				candidates = candidateOrder(d.Original, added)
				st = pollingKnownContexts
				d.debugf("scan: %d new context(s), polling %d candidate(s)\n", len(added), len(candidates))
				continue
			}

			if token, url, ok := probe(d.Original, seen); ok {
				return token, url, nil
			}

		case pollingKnownContexts:
			for _, t := range candidates {
				if token, url, ok := probe(t, seen); ok {
					return token, url, nil
				}
			}
		}

		sleep(ctx, interval)
	}

	return "", "", fmt.Errorf("%w within %s, urls seen: [%s]", ErrScanIDNotFound, timeout, joinSeen(seen))
}

// newTargets reports contexts that were not open before the click.
func (d *Discovery) newTargets() []Target {
	var added []Target
	for _, t := range d.ListTargets() {
		if !d.Before[t.ID()] {
			added = append(added, t)
		}
	}
	return added
}

// candidateOrder fixes the probe priority: newest new tab first, then the
// original page, then the remaining new tabs, deduplicated.
func candidateOrder(original Target, added []Target) []Target {
	ordered := make([]Target, 0, len(added)+1)
	ordered = append(ordered, added[len(added)-1])
	if original != nil {
		ordered = append(ordered, original)
	}
	ordered = append(ordered, added...)

	seen := map[string]bool{}
	out := ordered[:0]
	for _, t := range ordered {
		if seen[t.ID()] {
			continue
		}
		seen[t.ID()] = true
		out = append(out, t)
	}
	return out
}

func probe(t Target, seen map[string]bool) (string, string, bool) {
	if t == nil {
		return "", "", false
	}

	if u := t.URL(); u != "" {
		seen[u] = true
	}

	token, ok := t.Token()
	if !ok || strings.TrimSpace(token) == "" {
		return "", "", false
	}

	return strings.TrimSpace(token), t.URL(), true
}

func joinSeen(seen map[string]bool) string {
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return strings.Join(urls, ", ")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (d *Discovery) debugf(format string, args ...any) {
	if d.Log != nil {
		d.Log.Debugf(format, args...)
	}
}
