package httpclient

import (
	"net/http"
)

const (
	AuthorizationHeader = "Authorization"
	UserAgentHeader     = "User-Agent"
)

// HeaderTransport adds default headers to every request and a bearer token to
// requests addressed to authHost. Headers already present on a request win.
type HeaderTransport struct {
	Headers  map[string]string
	Token    string
	AuthHost string
	Base     http.RoundTripper
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req
	cloned := false
	set := func(k, v string) {
		if !cloned {
			out = req.Clone(req.Context())
			cloned = true
		}
		out.Header.Set(k, v)
	}

	for k, v := range t.Headers {
		if req.Header.Get(k) == "" {
			set(k, v)
		}
	}
	if t.Token != "" && req.Header.Get(AuthorizationHeader) == "" && req.URL.Host == t.AuthHost {
		set(AuthorizationHeader, "Bearer "+t.Token)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}
