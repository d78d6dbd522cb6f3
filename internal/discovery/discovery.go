// Package discovery finds media candidates behind a page and downloads them
// through the logged-in session.
package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/italolelis/media_relay/internal/candidate"
	"github.com/italolelis/media_relay/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"
)

const (
	tagListSelector    = "ul.tags-list a[href$='.mp4']"
	asyncBlockSelector = "div.tab-box[data-limit-url], a.js-limit-url[data-limit-url], a.js-limit-url[href]"
	mp4LinkSelector    = "a[href$='.mp4']"

	scriptLabel = "from_script"
)

var scriptMediaPattern = regexp.MustCompile(`https?://[^\s"']+\.mp4[^\s"']*`)

type Config struct {
	UserAgent   string
	PageTimeout time.Duration

	LoginURL string
	Username string
	Password string
}

func (c Config) loginEnabled() bool {
	return c.LoginURL != "" && c.Username != "" && c.Password != ""
}

// Client shares one cookie jar between page discovery and session downloads.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu       sync.Mutex
	loggedIn bool
}

func NewClient(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Session returns the logged-in HTTP client.
func (c *Client) Session() *http.Client {
	return c.httpClient
}

// Discover returns the media candidates found on pageURL in page order. An
// empty result with a nil error means the page was readable but had no media.
func (c *Client) Discover(ctx context.Context, pageURL string) ([]candidate.Candidate, error) {
	logger := logctx.LoggerFromContext(ctx).With("page_url", pageURL)

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, &Error{PageURL: pageURL, Reason: "invalid page url", Err: err}
	}

	c.ensureLogin(ctx)

	doc, err := c.fetchDocument(ctx, base)
	if err != nil {
		return nil, &Error{PageURL: pageURL, Reason: "failed to fetch page", Err: err}
	}

	found := newCollector()

	doc.Find(tagListSelector).Each(func(_ int, s *goquery.Selection) {
		found.addAnchor(base, s)
	})

	if found.empty() {
		c.scanAsyncBlock(ctx, base, doc, found)
	}

	if found.empty() {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			if href, _ := s.Attr("href"); strings.Contains(href, ".mp4") {
				found.addAnchor(base, s)
			}
		})
	}

	if found.empty() {
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			for _, match := range scriptMediaPattern.FindAllString(s.Text(), -1) {
				found.add(base, match, scriptLabel)
			}
		})
	}

	logger.DebugContext(ctx, "page analyzed", "candidates", len(found.candidates))

	return found.candidates, nil
}

// scanAsyncBlock follows the first lazily loaded download block of the page.
func (c *Client) scanAsyncBlock(ctx context.Context, base *url.URL, doc *goquery.Document, found *collector) {
	logger := logctx.LoggerFromContext(ctx)

	block := doc.Find(asyncBlockSelector).First()
	if block.Length() == 0 {
		return
	}

	ref, ok := block.Attr("data-limit-url")
	if !ok {
		ref, ok = block.Attr("href")
	}

	if !ok || ref == "" {
		return
	}

	blockURL, err := base.Parse(ref)
	if err != nil {
		logger.DebugContext(ctx, "invalid async block url", "ref", ref, "err", err)
		return
	}

	blockDoc, err := c.fetchDocument(ctx, blockURL)
	if err != nil {
		logger.WarnContext(ctx, "failed to load async block", "block_url", blockURL.String(), "err", err)
		return
	}

	blockDoc.Find(mp4LinkSelector).Each(func(_ int, s *goquery.Selection) {
		found.addAnchor(blockURL, s)
	})
}

func (c *Client) fetchDocument(ctx context.Context, u *url.URL) (*goquery.Document, error) {
	if c.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PageTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return doc, nil
}

// Fetch opens location through the session. The size is 0 when the server
// does not report one.
func (c *Client) Fetch(ctx context.Context, location *url.URL) (io.ReadCloser, int64, error) {
	c.ensureLogin(ctx)

	req, err := c.newRequest(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch media: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status code %d fetching media", resp.StatusCode)
	}

	size := resp.ContentLength
	if size < 0 {
		size = 0
	}

	return resp.Body, size, nil
}

// ensureLogin posts the login form until it succeeds once. Failures are
// logged and retried on the next call; anonymous discovery still proceeds.
func (c *Client) ensureLogin(ctx context.Context) {
	if !c.cfg.loginEnabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loggedIn {
		return
	}

	logger := logctx.LoggerFromContext(ctx).With("login_url", c.cfg.LoginURL)

	if err := c.login(ctx); err != nil {
		logger.WarnContext(ctx, "site login failed", "err", err)
		return
	}

	c.loggedIn = true

	logger.InfoContext(ctx, "logged in to site")
}

func (c *Client) login(ctx context.Context) error {
	if c.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.PageTimeout)
		defer cancel()
	}

	form := url.Values{
		"username": {c.cfg.Username},
		"pass":     {c.cfg.Password},
		"action":   {"login"},
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	return req, nil
}

// collector keeps candidates in discovery order without duplicates.
type collector struct {
	seen       map[string]struct{}
	candidates []candidate.Candidate
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) empty() bool {
	return len(c.candidates) == 0
}

func (c *collector) addAnchor(base *url.URL, s *goquery.Selection) {
	href, _ := s.Attr("href")

	label := strings.TrimSpace(s.Text())
	if label == "" {
		label = href
	}

	c.add(base, href, label)
}

func (c *collector) add(base *url.URL, ref, label string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return
	}

	loc, err := base.Parse(ref)
	if err != nil {
		return
	}

	key := loc.String()
	if _, ok := c.seen[key]; ok {
		return
	}

	c.seen[key] = struct{}{}
	c.candidates = append(c.candidates, candidate.New(loc, label))
}
