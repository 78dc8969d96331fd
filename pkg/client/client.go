// Package client is a small API client for the kmlstore HTTP service,
// used by the kml-cli tool and integration setups.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"kmlstore/pkg/models"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 500 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

// Record mirrors the success envelope of the service.
type Record struct {
	Success       bool   `json:"success"`
	ID            string `json:"id"`
	AdminID       string `json:"admin_id,omitempty"`
	Created       string `json:"created"`
	Updated       string `json:"updated"`
	Empty         bool   `json:"empty"`
	Author        string `json:"author"`
	AuthorVersion string `json:"author_version"`
	Links         struct {
		Self string `json:"self"`
		KML  string `json:"kml"`
	} `json:"links"`
}

// APIError is returned when the service answers with the error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kmlstore: %s (status %d)", e.Message, e.StatusCode)
}

// Client talks to a kmlstore instance. Requests are retried on
// connection errors only; HTTP error responses are surfaced as APIError.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

func New(baseURL string) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = defaultRetryMax
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.Logger = nil // Disable retryablehttp logging
	client.CheckRetry = connectionErrorRetryPolicy

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

// connectionErrorRetryPolicy only retries when no response was received
// at all. Error responses from the service are final and forwarded.
func connectionErrorRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error itself
	}
	return false, nil
}

// Create uploads a new document. The body may be plain or gzipped KML.
func (c *Client) Create(ctx context.Context, kmlData []byte, author, authorVersion string) (*Record, error) {
	fields := map[string]string{"author": author}
	if authorVersion != "" {
		fields["author_version"] = authorVersion
	}
	return c.submit(ctx, http.MethodPost, c.baseURL+"/admin", kmlData, fields, http.StatusCreated)
}

// Get fetches a record by its document ID.
func (c *Client) Get(ctx context.Context, id string) (*Record, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/admin/"+id, "", nil, http.StatusOK)
}

// GetByAdminID fetches a record via the admin token.
func (c *Client) GetByAdminID(ctx context.Context, adminID string) (*Record, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/admin?admin_id="+adminID, "", nil, http.StatusOK)
}

// Update replaces the document body. The admin token must match.
func (c *Client) Update(ctx context.Context, id, adminID string, kmlData []byte, authorVersion string) (*Record, error) {
	fields := map[string]string{"admin_id": adminID}
	if authorVersion != "" {
		fields["author_version"] = authorVersion
	}
	return c.submit(ctx, http.MethodPut, c.baseURL+"/admin/"+id, kmlData, fields, http.StatusOK)
}

// Delete removes a document and its record.
func (c *Client) Delete(ctx context.Context, id, adminID string) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("admin_id", adminID); err != nil {
		return fmt.Errorf("build delete form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build delete form: %w", err)
	}

	_, err := c.do(ctx, http.MethodDelete, c.baseURL+"/admin/"+id, mw.FormDataContentType(), body.Bytes(), http.StatusOK)
	return err
}

// submit sends a multipart request carrying the kml file part plus form
// fields.
func (c *Client) submit(ctx context.Context, method, url string, kmlData []byte,
	fields map[string]string, wantStatus int) (*Record, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="kml"; filename="kml.xml"`)
	header.Set("Content-Type", models.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(kmlData); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	return c.do(ctx, method, url, mw.FormDataContentType(), body.Bytes(), wantStatus)
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte, wantStatus int) (*Record, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	// The service rejects requests carrying none of the origin headers.
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != wantStatus {
		return nil, decodeError(resp)
	}

	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &record, nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Message == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error.Message}
}
