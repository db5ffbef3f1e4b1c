package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// probeTimeout bounds every CDP round-trip during discovery so one stuck
// context cannot eat the shared deadline.
const probeTimeout = 2 * time.Second

// tokenSelectors is the probe priority for the DOM element exposing the
// scan token: exact input id, case-insensitive id, bare id, case-insensitive
// id on any tag, name attribute.
func tokenSelectors(id string) []string {
	return []string{
		fmt.Sprintf("input#%s", id),
		fmt.Sprintf(`input[id=%q i]`, id),
		fmt.Sprintf("#%s", id),
		fmt.Sprintf(`[id=%q i]`, id),
		fmt.Sprintf(`input[name=%q i]`, id),
	}
}

// pageTarget adapts a rod page to the discovery Target interface.
type pageTarget struct {
	page      *rod.Page
	selectors []string
}

func (t pageTarget) ID() string {
	return string(t.page.TargetID)
}

func (t pageTarget) URL() string {
	info, err := t.page.Timeout(probeTimeout).Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Token probes the page itself, then every iframe inside it.
func (t pageTarget) Token() (string, bool) {
	p := t.page.Timeout(probeTimeout)

	if v, ok := probeFrame(p, t.selectors); ok {
		return v, true
	}

	frames, err := p.Sleeper(rod.NotFoundSleeper).Elements("iframe")
	if err != nil {
		return "", false
	}

	for _, f := range frames {
		fp, err := f.Frame()
		if err != nil {
			continue
		}
		if v, ok := probeFrame(fp.Timeout(probeTimeout), t.selectors); ok {
			return v, true
		}
	}

	return "", false
}

// probeFrame tries each selector once, reading the value as attribute, live
// property, then evaluated property; first non-blank result wins.
func probeFrame(p *rod.Page, selectors []string) (string, bool) {
	for _, sel := range selectors {
		el, err := p.Sleeper(rod.NotFoundSleeper).Element(sel)
		if err != nil {
			continue
		}

		if v, err := el.Attribute("value"); err == nil && v != nil {
			if s := strings.TrimSpace(*v); s != "" {
				return s, true
			}
		}

		if v, err := el.Property("value"); err == nil {
			if s := strings.TrimSpace(v.Str()); s != "" {
				return s, true
			}
		}

		if res, err := el.Eval(`() => this.value`); err == nil {
			if s := strings.TrimSpace(res.Value.Str()); s != "" {
				return s, true
			}
		}
	}

	return "", false
}
