package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// MinContentLength is the minimum extracted text length to consider an HTTP fetch successful.
const MinContentLength = 500

// ShouldUseBrowser reports whether extracted text is short enough that the page
// is probably rendered client-side.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// RenderFunc renders a URL and returns the resulting HTML.
type RenderFunc func(ctx context.Context, url string, timeout time.Duration) (string, error)

// WithBrowser renders a page in headless Chrome and returns the rendered HTML.
// Requires Chrome/Chromium on the host.
func WithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Give client-side rendering a moment to populate the page.
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	return html, nil
}

// loggingRenderer wraps render with debug logging.
func loggingRenderer(render RenderFunc, logger *zap.Logger) RenderFunc {
	return func(ctx context.Context, url string, timeout time.Duration) (string, error) {
		start := time.Now()
		html, err := render(ctx, url, timeout)
		if err != nil {
			logger.Debug("browser render failed", zap.String("url", url), zap.Error(err))
			return "", err
		}
		logger.Debug("browser render complete", zap.String("url", url), zap.Int("bytes", len(html)), zap.Duration("took", time.Since(start)))
		return html, nil
	}
}
