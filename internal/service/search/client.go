package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

// MaxResults caps both the requested and the returned result count.
const MaxResults = 5

const serperService = "serper"

// Config configures the Serper client.
type Config struct {
	APIKey     string
	URL        string
	HTTPClient *http.Client
}

// Client queries the Serper web search API.
type Client struct {
	apiKey string
	url    string
	client *http.Client
	logger logrus.FieldLogger
}

// NewClient creates a search client.
func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		apiKey: strings.TrimSpace(cfg.APIKey),
		url:    cfg.URL,
		client: client,
		logger: logging.Component(logger, "search"),
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

// Search returns at most MaxResults organic hits in provider order. Failures
// are returned to the caller untouched.
func (c *Client) Search(ctx context.Context, query string) ([]chat.SearchResult, error) {
	if c.apiKey == "" {
		return nil, &upstream.ConfigurationError{Service: "Serper", EnvKey: "SERPER_API_KEY"}
	}

	body, err := sonic.Marshal(searchRequest{Q: query, Num: MaxResults})
	if err != nil {
		return nil, fmt.Errorf("serper: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := upstream.Send(c.client, serperService, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !upstream.IsSuccess(resp.StatusCode) {
		searchErr := &upstream.SearchError{StatusCode: resp.StatusCode, Body: upstream.ReadBody(resp)}
		c.logger.WithError(searchErr).Warn("search request rejected")
		return nil, searchErr
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &upstream.NetworkError{Service: serperService, Err: err}
	}

	var out searchResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, &upstream.SearchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	results := make([]chat.SearchResult, 0, MaxResults)
	for _, item := range out.Organic {
		if len(results) == MaxResults {
			break
		}
		results = append(results, chat.SearchResult{
			Title:   item.Title,
			Snippet: item.Snippet,
			URL:     item.Link,
		})
	}

	c.logger.WithFields(logrus.Fields{"query": query, "results": len(results)}).Debug("search completed")
	return results, nil
}
