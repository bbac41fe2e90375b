package upstream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a failed response body is kept for diagnostics.
const maxErrorBody = 64 << 10

// ConfigurationError 表示缺失或无效的凭证，在任何网络请求之前返回。
type ConfigurationError struct {
	Service string
	EnvKey  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s API key is not configured. Please add %s to your environment variables.", e.Service, e.EnvKey)
}

// NetworkError wraps a transport-level failure (DNS, dial, TLS, timeout).
type NetworkError struct {
	Service string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Service, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError carries a non-success status from the chat-completion endpoint.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API request failed: %d - %s", e.Service, e.StatusCode, e.Body)
}

// EmptyResponseError reports a success status whose payload has no usable answer.
type EmptyResponseError struct {
	Service string
	Reason  string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s: empty response: %s", e.Service, e.Reason)
}

// SearchError is returned by the web search client for non-success statuses
// and undecodable bodies.
type SearchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search failed: %d - %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("search failed: %d - %s", e.StatusCode, e.Body)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the upstream HTTP status from err, or 0 when none is attached.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var searchErr *SearchError
	if errors.As(err, &searchErr) {
		return searchErr.StatusCode
	}
	return 0
}

// Send performs req and converts transport failures into *NetworkError.
func Send(client *http.Client, service string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Service: service, Err: err}
	}
	return resp, nil
}

// ReadBody drains resp.Body up to maxErrorBody bytes for error reporting.
func ReadBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Sprintf("<unreadable body: %v>", err)
	}
	return strings.TrimSpace(string(data))
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
