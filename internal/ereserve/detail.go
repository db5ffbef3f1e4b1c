package ereserve

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BookTitle scrapes the detail page for the book title used as PDF
// metadata. Best effort: callers fall back to the book id.
func BookTitle(ctx context.Context, client *http.Client, detailURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("detail page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Portals usually suffix the site name: "书名 - 教参服务平台".
	for _, sep := range []string{" - ", " | ", "_"} {
		if i := strings.Index(title, sep); i > 0 {
			title = strings.TrimSpace(title[:i])
			break
		}
	}

	if title == "" {
		return "", fmt.Errorf("detail page: no title")
	}

	return title, nil
}
