package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

const (
	fetchUserAgent = "lectern/1.0 (+https://github.com/lecternhq/lectern)"

	defaultFetchParallelism = 2
	defaultFetchDelay       = 1 * time.Second
	defaultFetchTimeout     = 30 * time.Second
)

// FetchConfig bounds the crawler. Zero values fall back to defaults.
type FetchConfig struct {
	Parallelism int           // concurrent requests per domain
	Delay       time.Duration // wait between requests to the same domain
	Timeout     time.Duration // per-request timeout
}

// Fetcher downloads a course page and renders it as a course document
// the Processor understands: the readable page title becomes the course
// title, h2/h3 headings become lesson markers, and the readable body
// text becomes the content between them.
type Fetcher struct {
	parallelism int
	delay       time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultFetchParallelism
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultFetchDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	return &Fetcher{
		parallelism: cfg.Parallelism,
		delay:       cfg.Delay,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Fetch downloads pageURL and returns the rendered course document text.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("unsupported course URL %q", pageURL)
	}

	c := colly.NewCollector(
		colly.UserAgent(fetchUserAgent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(f.timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.parallelism,
		Delay:       f.delay,
	}); err != nil {
		return "", fmt.Errorf("configure fetch limits: %w", err)
	}

	var body []byte
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("fetch course page: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("course page %s returned no content", pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse course page: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", fmt.Errorf("extract course content: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	rendered := renderCourseDoc(u, title, article.Byline, article.TextContent, pageHeadings(u, doc))
	f.logger.Debug("course page fetched",
		"url", pageURL,
		"title", title,
		"bytes", len(body),
	)
	return rendered, nil
}

// pageHeading is one h2/h3 heading in document order.
type pageHeading struct {
	text string
	link string // first anchor inside the heading, resolved absolute
}

// pageHeadings collects the page's h2/h3 headings by walking their
// underlying HTML nodes.
func pageHeadings(base *url.URL, doc *goquery.Document) []pageHeading {
	var heads []pageHeading
	doc.Find("h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if len(sel.Nodes) == 0 {
			return
		}
		text := strings.TrimSpace(nodeText(sel.Nodes[0]))
		if text == "" {
			return
		}

		h := pageHeading{text: whitespaceRe.ReplaceAllString(text, " ")}
		if href, ok := sel.Find("a[href]").Attr("href"); ok {
			if abs, err := base.Parse(href); err == nil {
				h.link = abs.String()
			}
		}
		heads = append(heads, h)
	})
	return heads
}

// nodeText concatenates the text content beneath n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			sb.WriteString(nodeText(c))
		}
	}
	return sb.String()
}

// renderCourseDoc lays the extracted page out in the course document
// format. Headings are matched against the readable text to slice the
// content that follows each one; a heading absent from the readable text
// still becomes a lesson marker, just without content.
func renderCourseDoc(page *url.URL, title, byline, bodyText string, heads []pageHeading) string {
	body := whitespaceRe.ReplaceAllString(strings.TrimSpace(bodyText), " ")

	starts := make([]int, len(heads))
	cursor := 0
	for i, h := range heads {
		starts[i] = -1
		if pos := strings.Index(body[cursor:], h.text); pos >= 0 {
			starts[i] = cursor + pos
			cursor = starts[i] + len(h.text)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Course Title: %s\n", title)
	fmt.Fprintf(&sb, "Course Link: %s\n", page.String())
	if byline = strings.TrimSpace(byline); byline != "" {
		fmt.Fprintf(&sb, "Course Instructor: %s\n", byline)
	}
	sb.WriteString("\n")

	intro := body
	if first := firstFound(starts); first >= 0 {
		intro = body[:starts[first]]
	}
	if intro = strings.TrimSpace(intro); intro != "" {
		sb.WriteString(intro)
		sb.WriteString("\n")
	}

	for i, h := range heads {
		fmt.Fprintf(&sb, "\nLesson %d: %s\n", i, h.text)
		if h.link != "" {
			fmt.Fprintf(&sb, "Lesson Link: %s\n", h.link)
		}

		if starts[i] < 0 {
			continue
		}
		end := len(body)
		for j := i + 1; j < len(heads); j++ {
			if starts[j] >= 0 {
				end = starts[j]
				break
			}
		}
		if content := strings.TrimSpace(body[starts[i]+len(h.text) : end]); content != "" {
			sb.WriteString(content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func firstFound(starts []int) int {
	for i, s := range starts {
		if s >= 0 {
			return i
		}
	}
	return -1
}
