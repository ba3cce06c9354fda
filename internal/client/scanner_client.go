package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ScanResult is the scanner's verdict for one file.
type ScanResult struct {
	Clean  bool   `json:"clean"`
	Detail string `json:"detail,omitempty"`
}

// ScannerClient submits uploaded files to an HTTP malware scanning service.
type ScannerClient struct {
	http *resty.Client
}

// NewScannerClient builds a client for the scanning service at baseURL.
// Transport errors and 5xx answers are retried a few times; verdicts never are.
func NewScannerClient(baseURL, token string, timeout time.Duration) *ScannerClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &ScannerClient{http: c}
}

// Scan uploads data under fileName and returns the verdict.
func (c *ScannerClient) Scan(ctx context.Context, fileName string, data []byte) (ScanResult, error) {
	var out ScanResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("filename", fileName).
		SetBody(data).
		SetResult(&out).
		Post("/scan")
	if err != nil {
		return ScanResult{}, fmt.Errorf("scan %s: %w", fileName, err)
	}
	if resp.IsError() {
		return ScanResult{}, fmt.Errorf("scan %s: scanner status %d body=%q", fileName, resp.StatusCode(), resp.String())
	}
	return out, nil
}
