// Package reader turns web pages into plain text for the side-panel
// assistant.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultFetchTimeout  = 12 * time.Second
	DefaultBodyByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "glance-reader/1.0 (+https://github.com/horse-fit/glance)"
)

// Page is the readable content of one document.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// FetchOptions controls HTTP behavior for page fetches.
type FetchOptions struct {
	Timeout       time.Duration
	BodyByteLimit int64
	UserAgent     string
	HTTPClient    *http.Client
}

// FetchText retrieves pageURL and returns its readable text. title is used
// when nothing else can be extracted.
func FetchText(ctx context.Context, pageURL string, title string) (string, error) {
	page, err := Fetch(ctx, pageURL, title, FetchOptions{})
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// Fetch retrieves pageURL and extracts its readable content.
func Fetch(ctx context.Context, pageURL string, title string, opts FetchOptions) (Page, error) {
	target := strings.TrimSpace(pageURL)
	if target == "" {
		return Page{}, fmt.Errorf("page URL is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		text := CleanText(string(body))
		if text == "" {
			return Page{}, fmt.Errorf("reader extracted empty content")
		}
		return Page{URL: target, Title: strings.TrimSpace(title), Text: text}, nil
	}

	page, err := ExtractHTML(bytes.NewReader(body), target)
	if err != nil {
		return Page{}, err
	}
	if page.Title == "" {
		page.Title = strings.TrimSpace(title)
	}
	if page.Text == "" {
		page.Text = page.Title
	}
	if page.Text == "" {
		return Page{}, fmt.Errorf("reader extracted empty content")
	}
	return page, nil
}

// ExtractHTML runs readability over an HTML document. pageURL resolves
// relative links and may be empty.
func ExtractHTML(r io.Reader, pageURL string) (Page, error) {
	base := &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	if trimmed := strings.TrimSpace(pageURL); trimmed != "" {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return Page{}, fmt.Errorf("parse page url: %w", err)
		}
		base = parsed
	}

	article, err := readability.FromReader(r, base)
	if err != nil {
		return Page{}, fmt.Errorf("readability parse: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return Page{}, fmt.Errorf("render readability text: %w", err)
	}

	text := CleanText(rendered.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	return Page{
		URL:   strings.TrimSpace(pageURL),
		Title: strings.TrimSpace(article.Title()),
		Text:  text,
	}, nil
}

// CleanText normalizes line endings, collapses in-line whitespace and
// separates paragraphs with one blank line.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		if clean := strings.Join(strings.Fields(line), " "); clean != "" {
			paragraphs = append(paragraphs, clean)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// TruncateText clips text to maxChars runes, ending with an ellipsis when
// clipped.
func TruncateText(raw string, maxChars int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if maxChars <= 0 || trimmed == "" {
		return trimmed, false
	}
	runes := []rune(trimmed)
	if len(runes) <= maxChars {
		return trimmed, false
	}
	if maxChars == 1 {
		return "…", true
	}
	return strings.TrimSpace(string(runes[:maxChars-1])) + "…", true
}
