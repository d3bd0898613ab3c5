package layout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ErrImageDecode marks a tile whose image errored instead of loading. It is
// never fatal to a print.
var ErrImageDecode = errors.New("image failed to load")

// Printer turns a rendered document into PDF bytes.
type Printer interface {
	Print(ctx context.Context, doc *Document) ([]byte, error)
}

const imageStateJS = `(() => {
  const pending = [], broken = [];
  Array.from(document.images).forEach((img, i) => {
    if (!img.complete) pending.push(i);
    else if (img.naturalWidth === 0) broken.push(i);
  });
  return {pending, broken};
})()`

const settleImageJS = `new Promise(resolve => {
  const img = document.images[%d];
  if (img.complete) return resolve(img.naturalWidth > 0);
  img.addEventListener("load", () => resolve(true), {once: true});
  img.addEventListener("error", () => resolve(false), {once: true});
})`

type imageState struct {
	Pending []int `json:"pending"`
	Broken  []int `json:"broken"`
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// ChromePrinter prints through headless Chrome. The browser starts on the
// first Print and is shared by later ones; every document gets its own tab,
// which stays open until the document is detached.
type ChromePrinter struct {
	execPath string

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewChromePrinter uses the Chrome binary at execPath, or chromedp's lookup
// when empty.
func NewChromePrinter(execPath string) *ChromePrinter {
	return &ChromePrinter{execPath: execPath}
}

func (p *ChromePrinter) browser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCtx != nil {
		if p.browserCtx.Err() == nil {
			return p.browserCtx, nil
		}
		log.Warn("chrome exited, restarting", "err", context.Cause(p.browserCtx))
		p.shutdown()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if p.execPath != "" {
		opts = append(opts, chromedp.ExecPath(p.execPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	log.Debug("chrome started")

	p.browserCtx, p.browserCancel, p.allocCancel = browserCtx, browserCancel, allocCancel
	return browserCtx, nil
}

// Print loads doc in a new tab, waits until every image has settled and
// prints the tab to PDF.
func (p *ChromePrinter) Print(ctx context.Context, doc *Document) ([]byte, error) {
	browserCtx, err := p.browser()
	if err != nil {
		return nil, err
	}
	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	doc.bind(closeTab)
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var state imageState
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(doc.URL()),
		chromedp.Evaluate(imageStateJS, &state),
	); err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}

	waits := make([]func(context.Context) error, len(state.Pending))
	for i, idx := range state.Pending {
		waits[i] = func(context.Context) error {
			var loaded bool
			if err := chromedp.Run(tabCtx, chromedp.Evaluate(fmt.Sprintf(settleImageJS, idx), &loaded, awaitPromise)); err != nil {
				return err
			}
			if !loaded {
				return fmt.Errorf("%w: tile %d", ErrImageDecode, idx)
			}
			return nil
		}
	}
	failed := len(state.Broken)
	for _, err := range Settle(ctx, waits...) {
		if err != nil {
			failed++
			log.Warn("tile left blank", "err", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed > 0 {
		log.Warn("printing with blank tiles", "failed", failed, "tiles", doc.Tiles())
	}

	var pdf []byte
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPreferCSSPageSize(true).
			Do(ctx)
		pdf = buf
		return err
	})); err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	log.Debug("layout printed", "tiles", doc.Tiles(), "pending", len(state.Pending), "bytes", len(pdf))
	return pdf, nil
}

// Close shuts the browser down. Open tabs die with it.
func (p *ChromePrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown()
	return nil
}

func (p *ChromePrinter) shutdown() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.allocCancel()
	}
	p.browserCtx, p.browserCancel, p.allocCancel = nil, nil, nil
}
