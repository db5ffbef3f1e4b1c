package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	id    string
	url   string
	token string

	// afterProbes delays the token by that many Token calls.
	afterProbes int
	probes      int
}

func (f *fakeTarget) ID() string  { return f.id }
func (f *fakeTarget) URL() string { return f.url }

func (f *fakeTarget) Token() (string, bool) {
	f.probes++
	if f.token == "" || f.probes <= f.afterProbes {
		return "", false
	}
	return f.token, true
}

func fastDiscovery(d *Discovery) *Discovery {
	d.Interval = time.Millisecond
	d.Timeout = 200 * time.Millisecond
	return d
}

func TestDiscoveryTokenOnOriginalPage(t *testing.T) {
	// Token shows up on the original page after a few polls, no new tab.
	orig := &fakeTarget{
		id:          "orig",
		url:         "https://host/reader/book/42",
		token:       " tok-123 ",
		afterProbes: 3,
	}

	d := fastDiscovery(&Discovery{
		ListTargets: func() []Target { return []Target{orig} },
		Original:    orig,
		Before:      map[string]bool{"orig": true},
	})

	token, url, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.Equal(t, "https://host/reader/book/42", url)
}

func TestDiscoveryPrefersNewestNewTab(t *testing.T) {
	orig := &fakeTarget{id: "orig", url: "https://host/detail", token: "orig-token"}
	tab1 := &fakeTarget{id: "tab1", url: "https://host/reader/old", token: "tab1-token"}
	tab2 := &fakeTarget{id: "tab2", url: "https://host/reader/new", token: "tab2-token"}

	d := fastDiscovery(&Discovery{
		ListTargets: func() []Target { return []Target{orig, tab1, tab2} },
		Original:    orig,
		Before:      map[string]bool{"orig": true},
	})

	token, url, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tab2-token", token)
	assert.Equal(t, "https://host/reader/new", url)
}

func TestDiscoveryFallsBackToOriginalWhenTabHasNoToken(t *testing.T) {
	orig := &fakeTarget{id: "orig", url: "https://host/detail", token: "orig-token"}
	tab := &fakeTarget{id: "tab", url: "https://host/reader/blank"}

	d := fastDiscovery(&Discovery{
		ListTargets: func() []Target { return []Target{orig, tab} },
		Original:    orig,
		Before:      map[string]bool{"orig": true},
	})

	token, url, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "orig-token", token)
	assert.Equal(t, "https://host/detail", url)
}

func TestDiscoveryTimeoutListsSeenURLs(t *testing.T) {
	orig := &fakeTarget{id: "orig", url: "https://host/detail"}
	tab := &fakeTarget{id: "tab", url: "https://host/reader/empty"}

	d := &Discovery{
		ListTargets: func() []Target { return []Target{orig, tab} },
		Original:    orig,
		Before:      map[string]bool{"orig": true},
		Interval:    time.Millisecond,
		Timeout:     30 * time.Millisecond,
	}

	_, _, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanIDNotFound)
	assert.Contains(t, err.Error(), "https://host/detail")
	assert.Contains(t, err.Error(), "https://host/reader/empty")
}

func TestDiscoveryHonorsContextCancel(t *testing.T) {
	orig := &fakeTarget{id: "orig", url: "https://host/detail"}

	d := &Discovery{
		ListTargets: func() []Target { return []Target{orig} },
		Original:    orig,
		Before:      map[string]bool{"orig": true},
		Interval:    time.Millisecond,
		Timeout:     10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCandidateOrder(t *testing.T) {
	orig := &fakeTarget{id: "orig"}
	a := &fakeTarget{id: "a"}
	b := &fakeTarget{id: "b"}

	out := candidateOrder(orig, []Target{a, b})

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID())
	assert.Equal(t, "orig", out[1].ID())
	assert.Equal(t, "a", out[2].ID())
}

func TestCandidateOrderOriginalReappearsAsAdded(t *testing.T) {
	orig := &fakeTarget{id: "orig"}
	a := &fakeTarget{id: "a"}

	out := candidateOrder(orig, []Target{orig, a})

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID())
	assert.Equal(t, "orig", out[1].ID())
}

func TestMatchCookie(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "other", Value: "x"},
		{Name: "BotuReadKernel", Value: "kernel-value"},
	}

	v, ok := matchCookie(cookies, "BotuReadKernel")
	require.True(t, ok)
	assert.Equal(t, "kernel-value", v)
}

func TestMatchCookieCaseInsensitive(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "botureadkernel", Value: "lower-value"},
	}

	v, ok := matchCookie(cookies, "BotuReadKernel")
	require.True(t, ok)
	assert.Equal(t, "lower-value", v)
}

func TestMatchCookieSkipsEmptyAndMissing(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "BotuReadKernel", Value: ""},
	}

	_, ok := matchCookie(cookies, "BotuReadKernel")
	assert.False(t, ok)

	_, ok = matchCookie(nil, "BotuReadKernel")
	assert.False(t, ok)
}
