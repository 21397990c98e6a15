package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/retry"
)

// Options configures New. There are no package-level defaults to mutate; every
// client is built from the values passed here.
type Options struct {
	APIURL    string
	Token     string
	UserAgent string
	// ResponseHeaderTimeout bounds each attempt until headers arrive. Body reads
	// are unbounded so large artifact downloads are not cut off.
	ResponseHeaderTimeout time.Duration
	Policy                retry.Policy
	Recorder              metrics.Recorder
	Base                  http.RoundTripper
}

// OptionsFromConfig maps the http and remote sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		APIURL:                cfg.Remote.APIURL,
		Token:                 cfg.Remote.Token,
		UserAgent:             cfg.HTTP.UserAgent,
		ResponseHeaderTimeout: cfg.HTTP.Timeout,
		Policy:                retry.FromConfig(cfg.HTTP.Retry),
	}
}

// New returns a client whose transport chain is headers -> retry -> base.
func New(opts Options) *http.Client {
	base := opts.Base
	if base == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
		base = tr
	}

	headers := map[string]string{}
	if opts.UserAgent != "" {
		headers[UserAgentHeader] = opts.UserAgent
	}
	authHost := ""
	if u, err := url.Parse(opts.APIURL); err == nil {
		authHost = u.Host
	}

	return &http.Client{
		Transport: &HeaderTransport{
			Headers:  headers,
			Token:    opts.Token,
			AuthHost: authHost,
			Base: &RetryTransport{
				Policy:   opts.Policy,
				Base:     base,
				Recorder: opts.Recorder,
			},
		},
	}
}
