// Package putio relays media into a put.io account, either as a remote
// transfer put.io fetches itself or as a streamed file upload.
package putio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/italolelis/media_relay/internal/relay"
	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"
)

// Client is a relay.Relay backed by put.io. The target argument of the relay
// calls is ignored; everything lands in the configured folder.
type Client struct {
	putioClient *putio.Client
	folder      string

	mu       sync.Mutex
	folderID *int64
}

func NewClient(token, folder string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)

	return &Client{
		putioClient: putio.NewClient(oauthClient),
		folder:      folder,
	}
}

// Authenticate checks the token by reading the account info.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	user, err := c.putioClient.Account.Info(ctx)
	if err != nil {
		return classify("authenticate", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

// RelayURL registers location as a put.io transfer.
func (c *Client) RelayURL(ctx context.Context, _ string, location *url.URL) error {
	logger := logctx.LoggerFromContext(ctx).With("folder", c.folder)

	dirID, err := c.resolveFolder(ctx)
	if err != nil {
		return err
	}

	t, err := c.putioClient.Transfers.Add(ctx, location.String(), dirID, "")
	if err != nil {
		return classify("relay_url", err)
	}

	logger.InfoContext(ctx, "transfer added to Put.io", "transfer_id", t.ID)

	return nil
}

// OpenSink streams the upload straight into Files.Upload.
func (c *Client) OpenSink(ctx context.Context, _ string, name string, size int64) (relay.Sink, error) {
	dirID, err := c.resolveFolder(ctx)
	if err != nil {
		return nil, err
	}

	logger := logctx.LoggerFromContext(ctx).With("filename", name, "size_bytes", size)

	return relay.NewPipeSink(ctx, func(ctx context.Context, r io.Reader) error {
		upload, err := c.putioClient.Files.Upload(ctx, r, name, dirID)
		if err != nil {
			return classify("upload", err)
		}

		if upload.File != nil {
			logger.InfoContext(ctx, "file uploaded to Put.io", "file_id", upload.File.ID)
		}

		return nil
	}), nil
}

func (c *Client) resolveFolder(ctx context.Context) (int64, error) {
	if c.folder == "" {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.folderID != nil {
		return *c.folderID, nil
	}

	id, err := c.findDirectoryID(ctx, c.folder)
	if err != nil {
		return 0, &relay.DestinationError{
			Target: c.folder,
			Reason: "directory not found or inaccessible",
			Err:    err,
		}
	}

	c.folderID = &id

	return id, nil
}

func (c *Client) findDirectoryID(ctx context.Context, dir string) (int64, error) {
	search, err := c.putioClient.Files.Search(ctx, dir, 1)
	if err != nil {
		return 0, fmt.Errorf("error searching for directory: %w", err)
	}

	for _, f := range search.Files {
		if f.IsDir() && f.Name == dir {
			return f.ID, nil
		}
	}

	return 0, fmt.Errorf("directory not found: %s", dir)
}

// classify maps put.io API failures onto the relay error types.
func classify(operation string, err error) error {
	var apiErr *putio.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		status := apiErr.Response.StatusCode
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &relay.AuthenticationError{Operation: operation, Err: err}
		}

		return &relay.NetworkError{
			Operation:  operation,
			StatusCode: status,
			APIMessage: apiErr.Message,
			Err:        err,
		}
	}

	return &relay.NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
}
