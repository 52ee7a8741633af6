package collect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// ErrNewsAPINotConfigured is wrapped in the FetchError returned when no API
// key is available.
var ErrNewsAPINotConfigured = errors.New("NewsAPI key not configured")

// NewsAPIClient searches articles through NewsAPI. Its refs are search terms.
type NewsAPIClient struct {
	apiKey   string
	language string
	baseURL  string
	http     *resty.Client
}

// NewNewsAPIClient creates a NewsAPI client reading its key from apiKeyEnv.
func NewNewsAPIClient(apiKeyEnv, language string, timeout time.Duration) *NewsAPIClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &NewsAPIClient{
		apiKey:   os.Getenv(apiKeyEnv),
		language: language,
		baseURL:  newsAPIBaseURL,
		http:     resty.New().SetTimeout(timeout).SetHeader("User-Agent", userAgent),
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"articles"`
}

// Fetch searches NewsAPI for term and returns up to max items, most recent
// first.
func (c *NewsAPIClient) Fetch(ctx context.Context, term string, max int) ([]RawItem, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if !c.IsConfigured() {
		return nil, &FetchError{Ref: term, Err: ErrNewsAPINotConfigured}
	}

	pageSize := max
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	params := map[string]string{
		"q":        term,
		"pageSize": fmt.Sprintf("%d", pageSize),
		"sortBy":   "publishedAt",
	}
	if c.language != "" {
		params["language"] = c.language
	}

	var result newsAPIResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", c.apiKey).
		SetQueryParams(params).
		SetResult(&result).
		SetError(&result).
		Get(c.baseURL)
	if err != nil {
		return nil, &FetchError{Ref: term, Err: err}
	}
	if resp.IsError() {
		return nil, &FetchError{Ref: term, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), result.Message)}
	}
	if result.Status != "ok" {
		return nil, &FetchError{Ref: term, Err: fmt.Errorf("status %q: %s", result.Status, result.Message)}
	}

	var items []RawItem
	for _, a := range result.Articles {
		if max > 0 && len(items) >= max {
			break
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		item, ok := newRawItem(a.Title, a.URL)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
