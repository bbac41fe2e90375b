package chat

import (
	"errors"
	"regexp"
	"strings"

	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
)

// ErrorCategory groups turn failures by the sentence shown to the user.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNetwork       ErrorCategory = "network"
	CategoryAuth          ErrorCategory = "auth"
	CategoryRateLimit     ErrorCategory = "rate_limit"
	CategoryServer        ErrorCategory = "server"
	CategoryEmptyResponse ErrorCategory = "empty_response"
	CategorySearch        ErrorCategory = "search"
	CategoryUnknown       ErrorCategory = "unknown"
)

var userMessages = map[ErrorCategory]string{
	CategoryConfiguration: "Configuration Error: API keys are not properly set up. Please check your environment variables.",
	CategoryNetwork:       "Network Error: Unable to connect to AI services. Please check your internet connection and try again.",
	CategoryAuth:          "Authentication Error: Invalid API key. Please check your API key configuration.",
	CategoryRateLimit:     "Rate Limit Error: Too many requests. Please wait a moment and try again.",
	CategoryServer:        "Server Error: The AI service is temporarily unavailable. Please try again later.",
	CategoryEmptyResponse: "Empty Response: The AI service returned no answer. Please try again.",
	CategorySearch:        "Search Error: Web search failed. Please try again without search or later.",
	CategoryUnknown:       "I apologize, but I encountered an error processing your request.",
}

// UserMessage returns the fixed sentence for c.
func UserMessage(c ErrorCategory) string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

var serverStatusMarker = regexp.MustCompile(`\b5\d\d\b`)

// ClassifyError maps a turn failure to a category. Typed upstream errors are
// inspected first; errors that lost their type (for example through a
// provider SDK) fall back to markers in the message text.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}

	var cfgErr *upstream.ConfigurationError
	if errors.As(err, &cfgErr) {
		return CategoryConfiguration
	}
	var netErr *upstream.NetworkError
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	if status := upstream.StatusCode(err); status != 0 {
		if category, ok := categoryForStatus(status); ok {
			return category
		}
	}
	var emptyErr *upstream.EmptyResponseError
	if errors.As(err, &emptyErr) {
		return CategoryEmptyResponse
	}
	var searchErr *upstream.SearchError
	if errors.As(err, &searchErr) {
		return CategorySearch
	}

	return classifyMessage(err.Error())
}

func categoryForStatus(status int) (ErrorCategory, bool) {
	switch {
	case status == 401:
		return CategoryAuth, true
	case status == 429:
		return CategoryRateLimit, true
	case status >= 500 && status <= 599:
		return CategoryServer, true
	default:
		return "", false
	}
}

func classifyMessage(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api key is not configured"):
		return CategoryConfiguration
	case strings.Contains(lower, "failed to fetch"), strings.Contains(lower, "network"),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		return CategoryNetwork
	case strings.Contains(msg, "401"):
		return CategoryAuth
	case strings.Contains(msg, "429"):
		return CategoryRateLimit
	case serverStatusMarker.MatchString(msg):
		return CategoryServer
	case strings.Contains(lower, "empty response"):
		return CategoryEmptyResponse
	case strings.Contains(lower, "search failed"):
		return CategorySearch
	default:
		return CategoryUnknown
	}
}
