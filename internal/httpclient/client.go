package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/types"
)

const userAgent = "voxagent-billing/1.0"

// Request is one outbound call. Body is sent as JSON when set.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response holds the body of a 2xx answer. Non-2xx answers come back as *Error.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
}

type Client interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

type ClientConfig struct {
	Timeout  time.Duration
	RetryMax int
}

// DefaultClient implements the Client interface on top of go-retryablehttp.
// Connection failures and 5xx responses are retried a bounded number of times.
type DefaultClient struct {
	client *retryablehttp.Client
}

// NewDefaultClient creates a client bounded by the webhook timeout
func NewDefaultClient(cfg *config.Configuration, log *logger.Logger) Client {
	timeout := cfg.Webhook.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewClient(ClientConfig{Timeout: timeout, RetryMax: 2}, log)
}

func NewClient(cfg ClientConfig, log *logger.Logger) Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Debugw("retrying http request",
				"url", req.URL.String(),
				"attempt", attempt,
			)
		}
	}
	// hand non-2xx responses back to Send instead of turning them into errors
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &DefaultClient{client: rc}
}

// Send makes an HTTP request and returns the response
func (c *DefaultClient) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Please check the request payload").
			Mark(ierr.ErrHTTPClient)
	}

	httpReq.Header.Set("User-Agent", userAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	// lets a receiver correlate a delivery with our logs
	if requestID := types.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set(types.HeaderRequestID, requestID)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Request to external endpoint failed").
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read response from external endpoint").
			Mark(ierr.ErrHTTPClient)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewError(resp.StatusCode, respBody)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    headers,
	}, nil
}
