package decode

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// RendererState is the explicit capability state of the external PDF
// rendering surface. The probe runs once; Failed is sticky so a missing
// renderer degrades every PDF to a download instead of re-probing per open.
type RendererState int

const (
	RendererUnloaded RendererState = iota
	RendererLoading
	RendererReady
	RendererFailed
)

func (s RendererState) String() string {
	switch s {
	case RendererUnloaded:
		return "unloaded"
	case RendererLoading:
		return "loading"
	case RendererReady:
		return "ready"
	case RendererFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Renderer probes for a headless Chromium that can print pages, the surface
// paginated PDF display is deferred to.
type Renderer struct {
	mu       sync.Mutex
	state    RendererState
	err      error
	execPath string
	timeout  time.Duration
	log      zerolog.Logger
}

func NewRenderer(execPath string, timeout time.Duration, log zerolog.Logger) *Renderer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Renderer{
		state:    RendererUnloaded,
		execPath: execPath,
		timeout:  timeout,
		log:      log.With().Str("component", "renderer").Logger(),
	}
}

// Load runs the capability probe if it has not run yet and returns the
// resulting state. Safe to call from multiple goroutines; only the first
// caller probes.
func (r *Renderer) Load(ctx context.Context) RendererState {
	r.mu.Lock()
	if r.state == RendererReady || r.state == RendererFailed {
		state := r.state
		r.mu.Unlock()
		return state
	}
	r.state = RendererLoading
	r.mu.Unlock()

	err := r.probe(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = RendererFailed
		r.err = err
		r.log.Warn().Err(err).Msg("pdf renderer unavailable, pdf documents fall back to download")
	} else {
		r.state = RendererReady
		r.log.Info().Msg("pdf renderer ready")
	}
	return r.state
}

// State returns the current capability state without probing.
func (r *Renderer) State() RendererState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the probe failure, if any.
func (r *Renderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Renderer) probe(ctx context.Context) error {
	execPath := r.execPath
	if execPath == "" {
		path, err := exec.LookPath("chromium-browser")
		if err != nil {
			path, err = exec.LookPath("chromium")
			if err != nil {
				return fmt.Errorf("chromium not installed: %w", err)
			}
		}
		execPath = path
	} else if _, err := exec.LookPath(execPath); err != nil {
		return fmt.Errorf("renderer binary %s: %w", execPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Print a blank page to verify the whole render pipeline, not just that
	// the binary exists.
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, err := page.PrintToPDF().
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("renderer probe: %w", err)
	}
	return nil
}
