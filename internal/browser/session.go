// Package browser owns the interactive Chrome session: launching a headful
// browser for the human login step, driving the detail page click, and
// discovering the viewer scan token across whatever contexts the click
// produces. Nothing here reimplements the browser; it is all driven over
// rod/CDP.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrMissingCredential is returned when the browser context holds no cookie
// matching the session cookie name, i.e. the viewer was never opened with a
// completed login.
var ErrMissingCredential = errors.New("missing session cookie")

// Session is the authenticated browsing context. It owns the launched
// Chrome for the process lifetime.
type Session struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page

	navTimeout time.Duration
	log        interface{ Debugf(string, ...any) }
}

type SessionOptions struct {
	NavTimeout time.Duration
	Log        interface{ Debugf(string, ...any) }
}

// Launch starts a headful Chrome and opens the initial page. Headful is not
// optional: the operator has to log in by hand.
func Launch(opts SessionOptions) (*Session, error) {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 45 * time.Second
	}

	l := launcher.New().
		Headless(false).
		Set("disable-blink-features", "AutomationControlled")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	return &Session{
		browser:    b,
		lnch:       l,
		page:       page,
		navTimeout: opts.NavTimeout,
		log:        opts.Log,
	}, nil
}

// Navigate loads a URL in the original page and waits for the DOM.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	p := s.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0); err != nil {
		s.debugf("browser: wait dom stable on %s: %v\n", url, err)
	}
	return nil
}

// ClickViewerButton waits for the "open viewer" control, snapshots the set
// of open contexts, and dispatches the click. The click is fire and forget:
// it may navigate this page or spawn a new tab, and it may invalidate the
// element handle mid-call, which is fine.
func (s *Session) ClickViewerButton(ctx context.Context, selector string) (map[string]bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	el, err := s.page.Context(waitCtx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: viewer button %q: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("browser: viewer button not visible: %w", err)
	}

	before, err := s.openTargetIDs()
	if err != nil {
		return nil, err
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.debugf("browser: click dispatched with error (navigation?): %v\n", err)
	}

	return before, nil
}

func (s *Session) openTargetIDs() (map[string]bool, error) {
	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}

	ids := make(map[string]bool, len(pages))
	for _, p := range pages {
		ids[string(p.TargetID)] = true
	}
	return ids, nil
}

// DiscoverScanToken runs the polled discovery over every open context and
// returns the token together with the URL of the context that exposed it.
func (s *Session) DiscoverScanToken(ctx context.Context, tokenElemID string, before map[string]bool, interval, timeout time.Duration) (string, string, error) {
	selectors := tokenSelectors(tokenElemID)

	d := &Discovery{
		ListTargets: func() []Target {
			pages, err := s.browser.Pages()
			if err != nil {
				s.debugf("browser: list pages: %v\n", err)
				return nil
			}
			out := make([]Target, 0, len(pages))
			for _, p := range pages {
				out = append(out, pageTarget{page: p, selectors: selectors})
			}
			return out
		},
		Original: pageTarget{page: s.page, selectors: selectors},
		Before:   before,
		Interval: interval,
		Timeout:  timeout,
		Log:      s.log,
	}

	return d.Run(ctx)
}

// CookieValue reads the cookie visible for targetURL: exact name match
// first, then case-insensitive, first non-empty value wins.
func (s *Session) CookieValue(targetURL, name string) (string, error) {
	cookies, err := s.page.Cookies([]string{targetURL})
	if err != nil {
		return "", fmt.Errorf("browser: read cookies: %w", err)
	}

	if v, ok := matchCookie(cookies, name); ok {
		return v, nil
	}

	return "", fmt.Errorf("%w: no cookie %q for %s (is the login complete?)", ErrMissingCredential, name, targetURL)
}

func matchCookie(cookies []*proto.NetworkCookie, name string) (string, bool) {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}

	lowered := strings.ToLower(name)
	for _, c := range cookies {
		if strings.ToLower(c.Name) == lowered && c.Value != "" {
			return c.Value, true
		}
	}

	return "", false
}

// AllCookies snapshots every cookie in the browsing context for the
// one-shot handoff to the plain HTTP client.
func (s *Session) AllCookies() ([]*proto.NetworkCookie, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot cookies: %w", err)
	}
	return cookies, nil
}

// CloseExtraTabs closes every context except the original page.
func (s *Session) CloseExtraTabs() {
	pages, err := s.browser.Pages()
	if err != nil {
		return
	}
	for _, p := range pages {
		if p.TargetID == s.page.TargetID {
			continue
		}
		if err := p.Close(); err != nil {
			s.debugf("browser: close tab: %v\n", err)
		}
	}
}

// Close shuts down Chrome.
func (s *Session) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
}

func (s *Session) debugf(format string, args ...any) {
	if s.log != nil {
		s.log.Debugf(format, args...)
	}
}
