package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeSession is an in-memory Session for handler and worker tests. It
// records every step and can be scripted to fail at a given operation.
type FakeSession struct {
	mu sync.Mutex

	// Scripted behavior.
	HTML        string
	PNG         []byte
	FailOn      string // "navigate" | "fill" | "click" | "content" | "screenshot"
	FailMessage string
	// Selectors that exist on the fake page. Empty means everything
	// matches.
	KnownSelectors []string

	// Recorded activity.
	NavigatedURLs []string
	Filled        map[string]string // selector -> value
	Clicked       []string
	Closed        bool
}

// NewFakeSession returns a session whose page shows the given HTML.
func NewFakeSession(html string) *FakeSession {
	return &FakeSession{
		HTML:   html,
		PNG:    []byte("png"),
		Filled: make(map[string]string),
	}
}

func (f *FakeSession) fail(op string) error {
	if f.FailOn == op {
		msg := f.FailMessage
		if msg == "" {
			msg = "scripted failure"
		}
		return fmt.Errorf("%s: %s", op, msg)
	}
	return nil
}

func (f *FakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("navigate"); err != nil {
		return err
	}
	f.NavigatedURLs = append(f.NavigatedURLs, url)
	return nil
}

func (f *FakeSession) Content(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("content"); err != nil {
		return "", err
	}
	return f.HTML, nil
}

func (f *FakeSession) Screenshot(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("screenshot"); err != nil {
		return nil, err
	}
	return f.PNG, nil
}

func (f *FakeSession) Fill(_ context.Context, selectors []string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("fill"); err != nil {
		return err
	}
	sel, ok := f.match(selectors)
	if !ok {
		return fmt.Errorf("no element matched candidates %v", selectors)
	}
	f.Filled[sel] = value
	return nil
}

func (f *FakeSession) Click(_ context.Context, selectors []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("click"); err != nil {
		return err
	}
	sel, ok := f.match(selectors)
	if !ok {
		return fmt.Errorf("no element matched candidates %v", selectors)
	}
	f.Clicked = append(f.Clicked, sel)
	return nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakeSession) match(selectors []string) (string, bool) {
	if len(selectors) == 0 {
		return "", false
	}
	if len(f.KnownSelectors) == 0 {
		return selectors[0], true
	}
	for _, sel := range selectors {
		for _, known := range f.KnownSelectors {
			if strings.EqualFold(sel, known) {
				return sel, true
			}
		}
	}
	return "", false
}

// FakeEngine hands out a fixed session.
type FakeEngine struct {
	Session *FakeSession
	// NewSessionErr, when set, is returned instead of a session.
	NewSessionErr error
}

func (e *FakeEngine) NewSession(_ context.Context) (Session, error) {
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	return e.Session, nil
}

func (e *FakeEngine) Close() error { return nil }
