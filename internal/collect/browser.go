package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Default rendering parameters for listing pages built client-side.
const (
	DefaultRenderWidth   = 1280
	DefaultRenderHeight  = 2000
	DefaultRenderTimeout = 30 * time.Second
	DefaultRenderSettle  = 1 * time.Second
)

// ChromeRenderer loads pages in headless Chromium via chromedp and returns
// the DOM after scripts have run.
type ChromeRenderer struct {
	// Width and Height are the viewport size. Zero uses the defaults.
	Width  int
	Height int

	// Timeout bounds one page load. Zero uses DefaultRenderTimeout.
	Timeout time.Duration

	// Settle is the pause after the body is ready, for late XHR rendering.
	Settle time.Duration
}

// Render navigates to pageURL, waits for the body and returns the outer
// HTML of the document.
func (r *ChromeRenderer) Render(parentCtx context.Context, pageURL string) (string, error) {
	width, height := r.Width, r.Height
	if width <= 0 {
		width = DefaultRenderWidth
	}
	if height <= 0 {
		height = DefaultRenderHeight
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	settle := r.Settle
	if settle <= 0 {
		settle = DefaultRenderSettle
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("browser: chromedp run failed: %w", err)
	}
	return html, nil
}
