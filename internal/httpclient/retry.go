package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/retry"
)

// RetryableStatuses are the response codes that trigger another attempt.
var RetryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// drainLimit bounds how much of a discarded body is read so the connection can be reused.
const drainLimit = 64 << 10

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryTransport retries requests that fail with a transient I/O error or a
// retryable status. When retries run out it returns the last response (with its
// body intact) or, when no response was ever received, the last error.
type RetryTransport struct {
	Policy   retry.Policy
	Base     http.RoundTripper
	Sleep    SleepFunc
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// NewRetryTransport wraps base with policy.
func NewRetryTransport(base http.RoundTripper, policy retry.Policy) *RetryTransport {
	return &RetryTransport{Policy: policy, Base: base}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !replayable(req) {
		return base.RoundTrip(req)
	}
	ctx := req.Context()
	logger := t.logger()
	recorder := metrics.OrNoop(t.Recorder)

	for attempt := 0; ; attempt++ {
		r, err := attemptRequest(req, attempt)
		if err != nil {
			return nil, err
		}
		resp, err := base.RoundTrip(r)
		if err == nil && !RetryableStatuses[resp.StatusCode] {
			return resp, nil
		}
		if err != nil && ctx.Err() != nil {
			return nil, canceled(ctx)
		}

		retryNum := attempt + 1
		if retryNum > t.Policy.MaxRetries {
			if err != nil {
				return nil, err
			}
			return resp, nil
		}

		delay := t.Policy.Delay(retryNum)
		reason, status := "io", 0
		if resp != nil {
			status = resp.StatusCode
			reason = strconv.Itoa(status)
			if ra, ok := ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
				delay = ra
			}
			discard(resp.Body)
		}

		recorder.IncHTTPRetry(reason)
		logger.Debug("Retrying HTTP request",
			logfields.Method(req.Method),
			logfields.URL(req.URL.Redacted()),
			logfields.HTTPStatus(status),
			logfields.Attempt(retryNum),
			logfields.Delay(delay),
			logfields.Error(err))

		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (t *RetryTransport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// SleepContext waits for d on a timer that is abandoned when ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return canceled(ctx)
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter interprets a Retry-After header given in whole seconds.
func ParseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func attemptRequest(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.GetBody == nil {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to rewind request body").Build()
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

func discard(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, drainLimit)
	_ = body.Close()
}

func canceled(ctx context.Context) error {
	return errors.CanceledError("request canceled").WithCause(ctx.Err()).Build()
}
