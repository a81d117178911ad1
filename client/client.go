package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/witanlabs/sitediff/internal"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultConcurrency    = 16
	defaultUserAgent      = "sitediff/dev"
	maxDocumentBytes      = 10 << 20
)

// Client checks that the links and images referenced by a page resolve.
// Every request is attempted exactly once.
type Client struct {
	UserAgent   string
	HTTPClient  *http.Client
	Concurrency int

	requestTimeout time.Duration
}

// New creates a probing client. timeout bounds each individual request;
// concurrency bounds how many checks of a page run at once.
func New(timeout time.Duration, concurrency int) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Client{
		UserAgent:      defaultUserAgent,
		HTTPClient:     &http.Client{},
		Concurrency:    concurrency,
		requestTimeout: timeout,
	}
}

// StatusError is returned when a URL answers with an error status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound returns true if the error is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusNotFound
	}
	return false
}

func (c *Client) do(ctx context.Context, method, target string) (*http.Response, []byte, error) {
	timeout := c.requestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var body []byte
	if method == http.MethodGet {
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			return resp, nil, fmt.Errorf("reading response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp, body, nil
}

// Check probes a single URL with HEAD, falling back to GET when the server
// does not support HEAD. A transport error or a status >= 400 marks the URL
// broken.
func (c *Client) Check(ctx context.Context, target string) CheckResult {
	res := CheckResult{URL: target}

	resp, _, err := c.do(ctx, http.MethodHead, target)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp, _, err = c.do(ctx, http.MethodGet, target)
	}
	if err != nil {
		res.Err = err.Error()
		return res
	}

	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= 400 {
		res.Err = (&StatusError{URL: target, StatusCode: resp.StatusCode}).Error()
	}
	return res
}

// FetchDocument downloads and parses the HTML of pageURL.
func (c *Client) FetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, body, err := c.do(ctx, http.MethodGet, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML of %s: %w", pageURL, err)
	}
	doc.Url = resp.Request.URL
	return doc, nil
}

// CheckPage fetches pageURL, collects every <a href> and <img src> it
// references, and checks them all in parallel. One failing check never
// stops the others; every outcome is reported.
func (c *Client) CheckPage(ctx context.Context, pageURL string) (*PageReport, error) {
	doc, err := c.FetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	refs := ExtractReferences(doc, doc.Url)
	tasks := make([]internal.Task[CheckResult], len(refs))
	for i, ref := range refs {
		tasks[i] = func(ctx context.Context) (CheckResult, error) {
			r := c.Check(ctx, ref.URL)
			r.Kind = ref.Kind
			return r, nil
		}
	}

	report := &PageReport{Page: pageURL, Checks: make([]CheckResult, len(refs))}
	for i, o := range internal.SettleAll(ctx, c.Concurrency, tasks...) {
		r := o.Value
		if o.Err != nil {
			r = CheckResult{URL: refs[i].URL, Kind: refs[i].Kind, Err: o.Err.Error()}
		}
		report.Checks[i] = r
		if r.Broken() {
			report.Broken++
		}
	}
	return report, nil
}

// ExtractReferences returns the absolute, de-duplicated link and image
// URLs of doc in document order. Fragment-only links and mailto:, tel:,
// javascript: and data: URLs are skipped.
func ExtractReferences(doc *goquery.Document, base *url.URL) []Reference {
	var refs []Reference
	seen := make(map[string]bool)

	add := func(kind RefKind, raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			return
		}
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		s := u.String()
		if seen[s] {
			return
		}
		seen[s] = true
		refs = append(refs, Reference{Kind: kind, URL: s})
	}

	doc.Find("a[href], img[src]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "img" {
			src, _ := s.Attr("src")
			add(RefImage, src)
			return
		}
		href, _ := s.Attr("href")
		add(RefLink, href)
	})
	return refs
}

func (c *Client) setCommonHeaders(req *http.Request) {
	userAgent := strings.TrimSpace(c.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
}
