package candidate

import (
	"context"
	"net/http"
	"time"

	"github.com/italolelis/media_relay/internal/logctx"
)

// HTTPProber checks a candidate with a HEAD request. Public must not carry
// session cookies; Session, when set, is the logged-in client used only to
// learn the size of candidates that are not publicly reachable.
type HTTPProber struct {
	Public    *http.Client
	Session   *http.Client
	UserAgent string
	Timeout   time.Duration
}

// Probe never fails: any error downgrades to a non-fetchable verdict.
func (p *HTTPProber) Probe(ctx context.Context, c Candidate) Verdict {
	logger := logctx.LoggerFromContext(ctx).With("location", c.Location.String())

	public := p.Public
	if public == nil {
		public = http.DefaultClient
	}

	status, size, err := p.head(ctx, public, c)
	if err == nil && status == http.StatusOK && size > 0 {
		logger.DebugContext(ctx, "candidate is publicly fetchable", "size", size)

		return Verdict{FetchableWithoutSession: true, KnownSize: size}
	}

	if err != nil {
		logger.DebugContext(ctx, "public probe failed", "err", err)
	}

	if p.Session == nil {
		return Verdict{}
	}

	status, size, err = p.head(ctx, p.Session, c)
	if err != nil || status != http.StatusOK || size < 0 {
		logger.DebugContext(ctx, "session probe did not report a size", "status", status, "err", err)

		return Verdict{}
	}

	return Verdict{KnownSize: size}
}

func (p *HTTPProber) head(ctx context.Context, client *http.Client, c Candidate) (int, int64, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.Location.String(), nil)
	if err != nil {
		return 0, 0, err
	}

	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, resp.ContentLength, nil
}
