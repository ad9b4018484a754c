// Package browser drives headless Chrome through chromedp, either a local
// Chrome (capture agent) or a remote Browserless endpoint (server-side
// scraping), and turns rendered pages into domain.PageData.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

var tracer = otel.Tracer("infra/browser")

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0 Safari/537.36 CharterLeads/1.0"

// Browser renders pages. Close releases the allocator.
type Browser struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	name     string
	tabs     *resilience.Bulkhead
	logger   *zap.Logger
}

// NewRemote connects to a Browserless (or any CDP) websocket endpoint.
func NewRemote(wsURL string, timeout time.Duration, logger *zap.Logger) (*Browser, error) {
	if wsURL == "" {
		return nil, &domain.ErrNotConfigured{Integration: "browserless"}
	}
	allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	return &Browser{allocCtx: allocCtx, cancel: cancel, timeout: timeout, name: "browserless", logger: logger}, nil
}

// NewLocal starts a local headless Chrome on first use.
func NewLocal(timeout time.Duration, logger *zap.Logger) *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{allocCtx: allocCtx, cancel: cancel, timeout: timeout, name: "chrome", logger: logger}
}

// LimitTabs caps the number of pages rendered at once. Browserless plans
// reject sessions above their concurrency quota.
func (b *Browser) LimitTabs(n int) *Browser {
	b.tabs = resilience.NewBulkhead(n)
	return b
}

// Close shuts the allocator down.
func (b *Browser) Close() {
	b.cancel()
}

// Capture navigates to url and returns the rendered page content.
func (b *Browser) Capture(ctx context.Context, url string) (*domain.PageData, error) {
	ctx, span := tracer.Start(ctx, "Browser.Capture")
	defer span.End()
	span.SetAttributes(attribute.String("page.url", url), attribute.String("browser", b.name))

	if b.tabs != nil {
		if err := b.tabs.Acquire(ctx); err != nil {
			return nil, &domain.ErrTimeout{Operation: "wait for browser tab"}
		}
		defer b.tabs.Release()
	}

	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var title, doc string
	err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(userAgent),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &doc),
	)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: b.name, Err: fmt.Errorf("render %s: %w", url, err)}
	}

	page, err := FromHTML(url, doc)
	if err != nil {
		return nil, err
	}
	if title != "" {
		page.Title = title
	}

	b.logger.Debug("page captured",
		zap.String("url", url),
		zap.Int("html_bytes", len(doc)),
		zap.Int("text_bytes", len(page.Text)),
	)
	return page, nil
}

// FromHTML builds PageData from an already fetched document.
func FromHTML(url, doc string) (*domain.PageData, error) {
	ex, err := Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &domain.PageData{
		URL:         url,
		Title:       ex.Title,
		Description: ex.Description,
		Text:        ex.Text,
		HTML:        doc,
		Emails:      ex.Emails,
		Phones:      ex.Phones,
		CapturedAt:  time.Now().UTC(),
	}, nil
}
