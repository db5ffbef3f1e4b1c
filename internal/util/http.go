package util

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
)

// BridgedCookie is one cookie copied out of the browser session. The copy
// is a one-shot snapshot taken after scan discovery; it is never refreshed,
// so a session expiring mid-run surfaces as a failed download.
type BridgedCookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

type HTTPClientOptions struct {
	Timeout     time.Duration
	UserAgent   string
	Cookies     []BridgedCookie
	Transport   http.RoundTripper
	DebugLogger interface {
		Debugf(string, ...any)
	}
}

// NewBridgedClient builds the plain HTTP client used for API calls and
// image downloads, seeded with the browser's cookies.
func NewBridgedClient(opts HTTPClientOptions) (*http.Client, error) {
	jar, _ := cookiejar.New(nil)

	var baseTransport http.RoundTripper
	if opts.Transport != nil {
		baseTransport = opts.Transport
	} else {
		baseTransport = cloudflarebp.AddCloudFlareByPass(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DisableCompression:  false,
			MaxIdleConns:        100,
			MaxConnsPerHost:     100,
			MaxIdleConnsPerHost: 100,
			ForceAttemptHTTP2:   true,
		})
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: roundTripper{
			base: baseTransport,
			ua:   opts.UserAgent,
			log:  opts.DebugLogger,
		},
		Jar: jar,
	}

	seedJar(jar, opts.Cookies)

	if opts.DebugLogger != nil {
		opts.DebugLogger.Debugf("HTTP client initialized (timeout=%s, ua=%q, cookies=%d)\n",
			opts.Timeout, opts.UserAgent, len(opts.Cookies))
	}

	return client, nil
}

func seedJar(jar http.CookieJar, cookies []BridgedCookie) {
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" || c.Name == "" {
			continue
		}

		path := c.Path
		if path == "" {
			path = "/"
		}

		u := &url.URL{Scheme: "https", Host: host, Path: path}
		jar.SetCookies(u, []*http.Cookie{{Name: c.Name, Value: c.Value, Path: path}})
	}
}

type roundTripper struct {
	base http.RoundTripper
	ua   string
	log  interface{ Debugf(string, ...any) }
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.ua != "" {
		req.Header.Set("User-Agent", rt.ua)
	}

	if rt.log != nil {
		rt.log.Debugf("HTTP %s %s\n", req.Method, req.URL.String())
	}

	return rt.base.RoundTrip(req)
}

func PickUserAgent(override string) string {
	if override != "" {
		return override
	}

	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
}
