package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"EvidenceLedger/internal/config"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/ports"
)

// TypeListing scrapes press-release listing pages.
const TypeListing = "listing"

const defaultDateLayout = "January 2, 2006"

var dateExpr = regexp.MustCompile(`(?:[A-Z][a-z]+ \d{1,2}, \d{4})|(?:\d{1,2} [A-Za-z]{3} \d{4})|(?:\d{4}-\d{2}-\d{2})`)

var fallbackLayouts = []string{"January 2, 2006", "Jan 2, 2006", "2 Jan 2006", "2006-01-02"}

// Listing extracts items from HTML listing pages using CSS selectors and
// keeps those that mention the organization.
type Listing struct {
	name       string
	pages      []string
	pageParam  string
	maxPages   int
	sel        config.SelectorConfig
	dateLayout string
	official   bool
	http       *httpclient.Retrying
	logger     *slog.Logger
}

var _ ports.Provider = (*Listing)(nil)

// NewListing validates selectors and page URLs.
func NewListing(cfg config.ProviderConfig, client *httpclient.Retrying, logger *slog.Logger) (*Listing, error) {
	if len(cfg.Pages) == 0 {
		return nil, fmt.Errorf("listing provider %s has no pages", cfg.Name)
	}
	if cfg.Selectors.Item == "" || cfg.Selectors.Title == "" {
		return nil, fmt.Errorf("listing provider %s needs item and title selectors", cfg.Name)
	}
	if client == nil {
		client = httpclient.New(nil, httpclient.DefaultPolicy(), logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	layout := cfg.DateLayout
	if layout == "" {
		layout = defaultDateLayout
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 || cfg.PageParam == "" {
		maxPages = 1
	}
	return &Listing{
		name:       cfg.Name,
		pages:      cfg.Pages,
		pageParam:  cfg.PageParam,
		maxPages:   maxPages,
		sel:        cfg.Selectors,
		dateLayout: layout,
		official:   cfg.Official,
		http:       client,
		logger:     logger,
	}, nil
}

// Name identifies the provider in status reports.
func (l *Listing) Name() string {
	return l.name
}

// Search walks every configured page and returns items mentioning organizationName.
func (l *Listing) Search(ctx context.Context, organizationName string) ([]domain.Article, error) {
	needle := strings.ToLower(strings.TrimSpace(organizationName))
	if needle == "" {
		return nil, nil
	}

	var results []domain.Article
	seen := map[string]struct{}{}

	for _, page := range l.pages {
		for n := 1; n <= l.maxPages; n++ {
			pageURL, err := buildPageURL(page, l.pageParam, n)
			if err != nil {
				return nil, err
			}

			doc, err := l.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("page %s: %w", pageURL, err)
			}

			items := l.extractArticles(doc, pageURL)
			l.logger.Debug("listing page parsed", "url", pageURL, "items", len(items))
			for _, article := range items {
				if _, ok := seen[article.URL]; ok {
					continue
				}
				seen[article.URL] = struct{}{}
				if strings.Contains(strings.ToLower(article.Text()), needle) {
					results = append(results, article)
				}
			}

			if len(items) == 0 {
				break
			}
		}
	}

	return results, nil
}

func (l *Listing) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := l.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (l *Listing) extractArticles(doc *goquery.Document, pageURL string) []domain.Article {
	base, _ := url.Parse(pageURL)

	var collected []domain.Article
	doc.Find(l.sel.Item).Each(func(_ int, item *goquery.Selection) {
		article, ok := l.parseEntry(item, base)
		if ok {
			collected = append(collected, article)
		}
	})
	return collected
}

func (l *Listing) parseEntry(item *goquery.Selection, base *url.URL) (domain.Article, bool) {
	titleSel := item.Find(l.sel.Title).First()
	title := collapse(titleSel.Text())
	if title == "" {
		return domain.Article{}, false
	}

	linkSel := titleSel
	if l.sel.Link != "" {
		linkSel = item.Find(l.sel.Link).First()
	}
	href, ok := linkSel.Attr("href")
	if !ok {
		href, ok = linkSel.Find("a[href]").First().Attr("href")
	}
	if !ok || strings.TrimSpace(href) == "" {
		return domain.Article{}, false
	}
	link := resolve(base, strings.TrimSpace(href))

	var summary string
	if l.sel.Summary != "" {
		summary = collapse(item.Find(l.sel.Summary).First().Text())
	}

	var published time.Time
	if l.sel.Date != "" {
		dateSel := item.Find(l.sel.Date).First()
		raw, has := dateSel.Attr("datetime")
		if !has {
			raw = dateSel.Text()
		}
		published = l.parseDate(raw)
	}

	html, _ := goquery.OuterHtml(item)
	return domain.Article{
		Title:       title,
		Summary:     summary,
		URL:         link,
		PublishedAt: published,
		SourceName:  l.name,
		RawPayload:  []byte(html),
		Regulatory:  l.official,
	}, true
}

// parseDate tries the configured layout, RFC 3339 and a few common press-release formats.
func (l *Listing) parseDate(raw string) time.Time {
	raw = collapse(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(l.dateLayout, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	match := dateExpr.FindString(raw)
	if match == "" {
		return time.Time{}
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, match); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func buildPageURL(base, param string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid page url %s: %w", base, err)
	}
	if param == "" || page <= 1 {
		return parsed.String(), nil
	}

	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
