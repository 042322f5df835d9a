package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vdavid/vmail/desktop/internal/models"
)

// Backend routes.
const (
	RouteHello           = "/hello"
	RouteGetAccounts     = "/get-accounts"
	RouteGetMailbox      = "/get-mailbox"
	RouteGetEmailContent = "/get-email-content"
)

// ErrRequestFailed is returned when the backend answers with success=false.
var ErrRequestFailed = errors.New("backend request failed")

// Response is the envelope every backend endpoint returns.
type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data,omitempty"`
}

// Client calls the local backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the backend at baseURL, e.g. "http://127.0.0.1:8000".
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTP is like NewClient with a caller-provided http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the backend address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Hello checks that the backend is up.
func (c *Client) Hello(ctx context.Context) error {
	_, err := get[struct{}](ctx, c, RouteHello, nil)
	return err
}

// GetAccounts returns the connected and failed accounts known to the backend.
func (c *Client) GetAccounts(ctx context.Context) (*models.AccountsResult, error) {
	data, err := get[models.AccountsResult](ctx, c, RouteGetAccounts, nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &models.AccountsResult{}, nil
	}
	return data, nil
}

// GetMailbox fetches the emails at 1-based offsets [offsetStart, offsetEnd] of a folder.
func (c *Client) GetMailbox(ctx context.Context, account, folder string, offsetStart, offsetEnd int) (*models.RawMailbox, error) {
	query := url.Values{}
	if folder != "" {
		query.Set("folder", folder)
	}
	query.Set("offset_start", strconv.Itoa(max(1, offsetStart)))
	query.Set("offset_end", strconv.Itoa(max(1, offsetEnd)))

	data, err := get[map[string]models.RawMailbox](ctx, c, RouteGetMailbox+"/"+url.PathEscape(account), query)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: no mailbox returned for %s", ErrRequestFailed, account)
	}
	mailbox, ok := (*data)[account]
	if !ok {
		return nil, fmt.Errorf("%w: no mailbox returned for %s", ErrRequestFailed, account)
	}
	return &mailbox, nil
}

// GetEmailContent fetches the full content of one email.
func (c *Client) GetEmailContent(ctx context.Context, account, folder, uid string) (*models.EmailContent, error) {
	endpoint := RouteGetEmailContent + "/" + url.PathEscape(account) + "/" + url.PathEscape(folder) + "/" + url.PathEscape(uid)
	data, err := get[models.EmailContent](ctx, c, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: empty content for %s/%s/%s", ErrRequestFailed, account, folder, uid)
	}
	return data, nil
}

func get[T any](ctx context.Context, c *Client, endpoint string, query url.Values) (*T, error) {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", endpoint, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	var envelope Response[T]
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s (status %d): %w", endpoint, resp.StatusCode, err)
	}

	if !envelope.Success {
		return nil, fmt.Errorf("%w: %s: %s", ErrRequestFailed, endpoint, envelope.Message)
	}

	return envelope.Data, nil
}
