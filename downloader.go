package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxFetchHops = 3
	fetchRetries = 2
)

var errTooLarge = errors.New("remote file exceeds the upload limit")

// retryable marks failures worth another attempt: transport errors and 5xx.
type retryable struct{ err error }

func (e retryable) Error() string { return e.err.Error() }
func (e retryable) Unwrap() error { return e.err }

// fetcher downloads PDFs for the URL based routes.
type fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	retries   int
	backoff   time.Duration
}

func newFetcher(timeout time.Duration, userAgent string, maxBytes int64) *fetcher {
	return &fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		retries:   fetchRetries,
		backoff:   500 * time.Millisecond,
	}
}

// fetchPDF returns the bytes and a file name for u.
// - URL trả PDF (content-type, đuôi .pdf hoặc octet-stream) -> đọc luôn.
// - URL trả HTML -> tìm link .pdf / "Download" rồi tải tiếp.
func (f *fetcher) fetchPDF(ctx context.Context, u string) (string, []byte, error) {
	return f.fetch(ctx, u, 0)
}

func (f *fetcher) fetch(ctx context.Context, u string, hop int) (string, []byte, error) {
	if hop > maxFetchHops {
		return "", nil, fmt.Errorf("too many redirects through HTML pages for %s", u)
	}
	pu, err := url.Parse(u)
	if err != nil || (pu.Scheme != "http" && pu.Scheme != "https") {
		return "", nil, fmt.Errorf("unsupported url %q", u)
	}

	resp, err := f.getWithRetry(ctx, u)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "pdf") || strings.HasSuffix(strings.ToLower(pu.Path), ".pdf") || ct == "application/octet-stream":
		data, err := f.readLimited(resp.Body)
		if err != nil {
			return "", nil, err
		}
		return remoteName(pu), data, nil

	case strings.Contains(ct, "text/html"):
		doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.maxBytes))
		if err != nil {
			return "", nil, err
		}
		next := findPDFLink(doc, u)
		if next == "" {
			return "", nil, fmt.Errorf("no direct PDF link found in HTML page: %s", u)
		}
		return f.fetch(ctx, next, hop+1)
	}
	return "", nil, fmt.Errorf("unsupported content-type %s for %s", ct, u)
}

// retry đơn giản cho lỗi mạng / 5xx
func (f *fetcher) getWithRetry(ctx context.Context, u string) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= f.retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoff):
			}
		}
		resp, err := f.get(ctx, u)
		if err == nil {
			return resp, nil
		}
		var again retryable
		if !errors.As(err, &again) {
			return nil, err
		}
		lastErr = again.err
	}
	return nil, lastErr
}

func (f *fetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retryable{err}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		err := errors.New("http " + strconv.Itoa(resp.StatusCode))
		if resp.StatusCode >= 500 {
			return nil, retryable{err}
		}
		return nil, err
	}
	return resp, nil
}

func (f *fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errTooLarge
	}
	return data, nil
}

// findPDFLink looks for <a href="...pdf">, then for anchors whose text
// mentions "download" or "pdf".
func findPDFLink(doc *goquery.Document, base string) string {
	var candidates []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		txt := strings.ToLower(strings.TrimSpace(a.Text()))
		abs := absURL(base, href)
		l := strings.ToLower(abs)
		switch {
		case strings.HasSuffix(l, ".pdf"):
			candidates = append(candidates, abs)
		case strings.Contains(txt, "download") || strings.Contains(txt, "pdf"):
			candidates = append(candidates, abs)
		}
	})

	// prefer .pdf endings
	for _, c := range candidates {
		if strings.HasSuffix(strings.ToLower(c), ".pdf") {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func absURL(baseStr, href string) string {
	bu, err := url.Parse(baseStr)
	if err != nil {
		return href
	}
	hu, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(hu).String()
}

// remoteName is the last path element of u, with a .pdf extension.
func remoteName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "download"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
