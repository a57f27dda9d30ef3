package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ChromeConfig configures the rod-backed engine.
type ChromeConfig struct {
	// DebuggerURL connects to an already-running Chrome. When empty a
	// headless instance is launched.
	DebuggerURL string
	Headless    bool
	Timeouts    Timeouts
}

// ChromeEngine drives a shared Chrome instance through rod. One engine per
// worker; sessions are cheap, the browser is not.
type ChromeEngine struct {
	cfg     ChromeConfig
	mu      sync.Mutex
	browser *rod.Browser
}

// NewChromeEngine creates an engine. The browser is started lazily on the
// first session.
func NewChromeEngine(cfg ChromeConfig) *ChromeEngine {
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	return &ChromeEngine{cfg: cfg}
}

func (e *ChromeEngine) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		if _, err := e.browser.Version(); err == nil {
			return e.browser, nil
		}
		// Stale connection; reconnect.
		_ = e.browser.Close()
		e.browser = nil
	}

	controlURL := e.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(e.cfg.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("automation: launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("automation: connect to chrome: %w", err)
	}
	e.browser = browser
	return browser, nil
}

// NewSession opens a fresh page.
func (e *ChromeEngine) NewSession(ctx context.Context) (Session, error) {
	browser, err := e.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("automation: open page: %w", err)
	}
	return &chromeSession{page: page, timeouts: e.cfg.Timeouts}, nil
}

// Close shuts down the browser.
func (e *ChromeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.browser = nil
	return err
}

type chromeSession struct {
	page     *rod.Page
	timeouts Timeouts
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.timeouts.Navigation)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	// Best effort: many form targets keep polling in the background and
	// never go fully idle.
	_ = s.page.Context(ctx).Timeout(s.timeouts.Idle).WaitIdle(s.timeouts.Idle)
	return nil
}

func (s *chromeSession) Content(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).Timeout(s.timeouts.Step).HTML()
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	shot, err := s.page.Context(ctx).Timeout(s.timeouts.Step).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return shot, nil
}

func (s *chromeSession) Fill(ctx context.Context, selectors []string, value string) error {
	el, sel, err := s.findFirst(ctx, selectors)
	if err != nil {
		return err
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %q: %w", sel, err)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, selectors []string) error {
	el, sel, err := s.findFirst(ctx, selectors)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", sel, err)
	}
	_ = s.page.Context(ctx).Timeout(s.timeouts.Idle).WaitIdle(s.timeouts.Idle)
	return nil
}

func (s *chromeSession) Close() error {
	return s.page.Close()
}

// findFirst tries each selector candidate with a short per-candidate budget
// and returns the first match.
func (s *chromeSession) findFirst(ctx context.Context, selectors []string) (*rod.Element, string, error) {
	if len(selectors) == 0 {
		return nil, "", fmt.Errorf("no selector candidates")
	}
	per := s.timeouts.Step / time.Duration(len(selectors))
	for _, sel := range selectors {
		el, err := s.page.Context(ctx).Timeout(per).Element(sel)
		if err == nil && el != nil {
			return el, sel, nil
		}
	}
	return nil, "", fmt.Errorf("no element matched candidates %v", selectors)
}
