package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkout-service/common/logger"

	"github.com/sony/gobreaker/v2"
)

// StatusError is a non-2xx response from an upstream service.
type StatusError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: status=%d code=%s: %s", e.Service, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status=%d: %s", e.Service, e.StatusCode, e.Message)
}

func (e *StatusError) HTTPStatus() int      { return e.StatusCode }
func (e *StatusError) ProviderCode() string { return e.Code }

// ServiceClient is a JSON-over-HTTP client for one upstream with its own
// circuit breaker. 5xx responses and transport errors count as breaker failures.
type ServiceClient struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewServiceClient creates a client for baseURL. The breaker opens after 5
// consecutive failures and half-opens after 30s.
func NewServiceClient(name, baseURL string, httpClient *http.Client) *ServiceClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ServiceClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// DoJSON sends in as the JSON body and decodes a 2xx response into out. Either
// may be nil.
func (c *ServiceClient) DoJSON(ctx context.Context, method, path string, headers http.Header, in, out interface{}) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		body = b
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if rid := logger.RequestID(ctx); rid != "unknown" {
			req.Header.Set("X-Request-ID", rid)
		}
		for k, v := range headers {
			for _, vv := range v {
				req.Header.Add(k, vv)
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			defer resp.Body.Close()
			return nil, c.statusError(resp)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &StatusError{Service: c.name, StatusCode: http.StatusServiceUnavailable, Code: "service_unavailable", Message: err.Error()}
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// State returns the breaker state.
func (c *ServiceClient) State() string {
	return c.breaker.State().String()
}

// Healthy fails while the breaker is open.
func (c *ServiceClient) Healthy(_ context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s circuit open", c.name)
	}
	return nil
}

type errorEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusError reads a JSON error body of the form {"error":"msg"},
// {"error":{"code","message"}} or {"code","message"}.
func (c *ServiceClient) statusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{Service: c.name, StatusCode: resp.StatusCode}

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		se.Message = strings.TrimSpace(string(raw))
	} else {
		se.Code, se.Message = env.Code, env.Message
	}
	if len(env.Error) > 0 {
		var s string
		var d errorDetail
		if json.Unmarshal(env.Error, &s) == nil {
			se.Message = s
		} else if json.Unmarshal(env.Error, &d) == nil {
			if d.Code != "" {
				se.Code = d.Code
			}
			if d.Message != "" {
				se.Message = d.Message
			}
		}
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}

func bodyReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}
