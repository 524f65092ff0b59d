// Package report renders HTML documents to PDF through a Gotenberg service.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotConfigured is returned when no Gotenberg URL is set.
	ErrNotConfigured = errors.New("report: gotenberg url not configured")
	// ErrRenderFailed wraps non-2xx responses from Gotenberg.
	ErrRenderFailed = errors.New("report: render failed")
)

// maxPDFBytes bounds the document read back from Gotenberg.
const maxPDFBytes = 32 << 20

// PageOptions maps onto Gotenberg's chromium form fields. Sizes are inches.
type PageOptions struct {
	Landscape   bool
	PaperWidth  float64
	PaperHeight float64
	Margin      float64
}

// A4Landscape fits the wide security event table.
var A4Landscape = PageOptions{Landscape: true, PaperWidth: 8.27, PaperHeight: 11.7, Margin: 0.4}

func (o PageOptions) fields() map[string]string {
	out := map[string]string{}
	if o.Landscape {
		out["landscape"] = "true"
	}
	if o.PaperWidth > 0 {
		out["paperWidth"] = fmt.Sprintf("%.2f", o.PaperWidth)
	}
	if o.PaperHeight > 0 {
		out["paperHeight"] = fmt.Sprintf("%.2f", o.PaperHeight)
	}
	if o.Margin > 0 {
		m := fmt.Sprintf("%.2f", o.Margin)
		out["marginTop"], out["marginBottom"], out["marginLeft"], out["marginRight"] = m, m, m, m
	}
	return out
}

// Client talks to the Gotenberg API. It satisfies audit.PDFRenderer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	page       PageOptions
}

// NewClient constructs a client using A4 landscape pages. An empty baseURL
// yields nil so callers can treat PDF export as unavailable.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		page:       A4Landscape,
	}
}

// WithPage returns a copy of c rendering with the given page options.
func (c *Client) WithPage(page PageOptions) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.page = page
	return &clone
}

// Ping checks that Gotenberg answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// RenderHTML converts an HTML document into a PDF.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}
	body, contentType, err := c.form(html)
	if err != nil {
		return nil, fmt.Errorf("report: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("report: read pdf: %w", err)
	}
	if len(pdf) > maxPDFBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrRenderFailed, maxPDFBytes)
	}
	return pdf, nil
}

func (c *Client) form(html string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, "", err
	}
	for name, value := range c.page.fields() {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

// do sends req and turns error statuses into ErrRenderFailed with a short
// excerpt of the upstream message.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report: gotenberg: %w", err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return nil, fmt.Errorf("%w: status %d: %s", ErrRenderFailed, resp.StatusCode, strings.TrimSpace(string(excerpt)))
}
