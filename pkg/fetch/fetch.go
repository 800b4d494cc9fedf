// Package fetch retrieves the watched product page.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

// A mainstream browser fingerprint; plain Go user agents get bot-blocked by
// most shop frontends.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Result is one fetched page.
type Result struct {
	StatusCode int
	Body       string
	Title      string // HTML <title>, empty if none found
}

// Client fetches pages with retries on transient transport failures.
type Client struct {
	http *retryablehttp.Client
}

// NewClient builds a page-fetching client. The timeout bounds the whole
// exchange including retries of a single attempt; proxy may be empty.
func NewClient(proxy string, timeout time.Duration) (*Client, error) {
	rc := retryablehttp.NewClient()
	rc.Logger = log.New(io.Discard, "", 0)
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = timeout

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		rc.HTTPClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		}
	}

	return &Client{http: rc}, nil
}

// Page performs a GET against pageURL and returns the body. Any status other
// than 200 is an error: without trusted content there is no verdict to make.
func (c *Client) Page(ctx context.Context, pageURL string) (*Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("Cache-Control", "no-transform")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	res := &Result{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
	}
	if title, ok := htmlTitle(res.Body); ok {
		res.Title = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
	}
	return res, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

func htmlTitle(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
