package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"EvidenceLedger/internal/config"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/ports"
)

// TypeNewsAPI queries a NewsAPI-compatible JSON search endpoint.
const TypeNewsAPI = "newsapi"

const (
	defaultNewsAPIURL = "https://newsapi.org/v2"
	defaultPageSize   = 50
	userAgent         = "EvidenceLedger/1.0"
)

// NewsAPI searches news articles by organization name.
type NewsAPI struct {
	name     string
	baseURL  string
	apiKey   string
	pageSize int
	language string
	http     *httpclient.Retrying
	logger   *slog.Logger
}

var _ ports.Provider = (*NewsAPI)(nil)

type newsAPIResponse struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Articles []json.RawMessage `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// NewNewsAPI requires an API key.
func NewNewsAPI(cfg config.ProviderConfig, client *httpclient.Retrying, logger *slog.Logger) (*NewsAPI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi provider %s: api key is empty", cfg.Name)
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultNewsAPIURL
	}
	size := cfg.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if client == nil {
		client = httpclient.New(nil, httpclient.DefaultPolicy(), logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsAPI{
		name:     cfg.Name,
		baseURL:  base,
		apiKey:   cfg.APIKey,
		pageSize: size,
		language: cfg.Language,
		http:     client,
		logger:   logger,
	}, nil
}

// Name identifies the provider in status reports.
func (n *NewsAPI) Name() string {
	return n.name
}

// Search returns the newest articles matching the quoted organization name.
func (n *NewsAPI) Search(ctx context.Context, organizationName string) ([]domain.Article, error) {
	query := url.Values{}
	query.Set("q", strconv.Quote(organizationName))
	query.Set("pageSize", strconv.Itoa(n.pageSize))
	query.Set("sortBy", "publishedAt")
	if n.language != "" {
		query.Set("language", n.language)
	}
	endpoint := n.baseURL + "/everything?" + query.Encode()

	resp, err := n.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", n.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("newsapi search: %w", err)
	}
	defer resp.Body.Close()

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}
	if payload.Status != "" && payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi error %s: %s", payload.Code, payload.Message)
	}

	articles := make([]domain.Article, 0, len(payload.Articles))
	for _, raw := range payload.Articles {
		var item newsAPIArticle
		if err := json.Unmarshal(raw, &item); err != nil {
			n.logger.Debug("skip malformed article", "error", err)
			continue
		}
		if item.URL == "" || item.Title == "" {
			continue
		}
		published, _ := time.Parse(time.RFC3339, item.PublishedAt)

		source := item.Source.Name
		if source == "" {
			source = n.name
		}
		articles = append(articles, domain.Article{
			Title:       strings.TrimSpace(item.Title),
			Summary:     stripHTML(item.Description),
			URL:         item.URL,
			PublishedAt: published.UTC(),
			SourceName:  source,
			RawPayload:  raw,
		})
	}
	return articles, nil
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}
