package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Submission is the verification payload.
type Submission struct {
	Solution string `json:"solution"`
	Tests    string `json:"tests"`
}

// Client wraps HTTP requests to a verifier server.
type Client struct {
	baseURL  string
	timeout  time.Duration
	compress bool
}

func New(baseURL string, timeout time.Duration, compress bool) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		compress: compress,
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

func (c *Client) SetCompress(compress bool) {
	c.compress = compress
}

// Runtimes fetches the runtime index.
func (c *Client) Runtimes(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, resp.Body)
	}
	var index struct {
		Runtimes []string `json:"runtimes"`
	}
	if err := json.Unmarshal(resp.Body, &index); err != nil {
		return nil, fmt.Errorf("decode runtime index failed: %w", err)
	}
	return index.Runtimes, nil
}

// Verify posts sub to the runtime endpoint and returns the raw response.
func (c *Client) Verify(ctx context.Context, runtime string, sub Submission) (ResponseInfo, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return ResponseInfo{}, fmt.Errorf("encode submission failed: %w", err)
	}
	headers := map[string]string{}
	if c.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return ResponseInfo{}, fmt.Errorf("create zstd encoder failed: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		_ = enc.Close()
		headers["Content-Encoding"] = "zstd"
	}
	return c.Do(ctx, http.MethodPost, "/"+url.PathEscape(runtime), headers, body)
}

func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo
	client := &http.Client{Timeout: c.timeout}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s%s", c.baseURL, path), reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}
