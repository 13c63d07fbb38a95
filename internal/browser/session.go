// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
)

var (
	// ErrURLTimeout is returned when the page URL does not match a pattern in time.
	ErrURLTimeout = errors.New("timed out waiting for url")
	// ErrElementTimeout is returned when an element does not appear in time.
	ErrElementTimeout = errors.New("timed out waiting for element")
	// ErrFrameNotFound is returned when an iframe selector matches nothing.
	ErrFrameNotFound = errors.New("iframe not found")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrBrowserClosed is returned when the browser process is gone.
	ErrBrowserClosed = errors.New("browser is closed")
)

const (
	defaultElementTimeout    = 10 * time.Second
	defaultURLTimeout        = 10 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	defaultPollInterval      = 500 * time.Millisecond
)

// Session is a single browser tab.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	elementTimeout    time.Duration
	urlTimeout        time.Duration
	navigationTimeout time.Duration
	pollInterval      time.Duration

	mu       sync.Mutex
	isClosed bool
	onClose  func()
}

func newSession(ctx context.Context, cancel context.CancelFunc, id string, cfg *config.Config, logger *zap.Logger) *Session {
	s := &Session{
		id:                id,
		ctx:               ctx,
		cancel:            cancel,
		logger:            logger.Named("session").With(zap.String("session_id", id)),
		elementTimeout:    orDefault(cfg.Browser.ElementTimeout, defaultElementTimeout),
		urlTimeout:        orDefault(cfg.Browser.URLTimeout, defaultURLTimeout),
		navigationTimeout: orDefault(cfg.Network.NavigationTimeout, defaultNavigationTimeout),
		pollInterval:      orDefault(cfg.Browser.PollInterval, defaultPollInterval),
	}
	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) targetID() string {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return ""
	}
	return string(c.Target.TargetID)
}

// run executes chromedp actions on the tab, bounded by ctx and an optional timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.closed() {
		return ErrSessionClosed
	}
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads url and waits until the document body is ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	err := s.run(ctx, s.navigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// NavigateAndWait navigates, then waits for the URL to match urlPattern (when
// set) and for every element to be present.
func (s *Session) NavigateAndWait(ctx context.Context, url, urlPattern string, elements ...string) error {
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	if urlPattern != "" {
		if err := s.WaitForURL(ctx, urlPattern, 0); err != nil {
			return err
		}
	}
	for _, xpath := range elements {
		if err := s.WaitForElement(ctx, xpath, 0); err != nil {
			return err
		}
	}
	return nil
}

// CurrentURL returns the URL of the tab.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, s.elementTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read current url: %w", err)
	}
	return url, nil
}

// URLMatches reports whether the current URL matches the regular expression pattern.
func (s *Session) URLMatches(ctx context.Context, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	return re.MatchString(url), nil
}

// WaitForElement waits until xpath matches an element in the page. A zero
// timeout uses the configured element timeout.
func (s *Session) WaitForElement(ctx context.Context, xpath string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.elementTimeout
	}
	err := s.run(ctx, timeout, chromedp.WaitReady(xpath, chromedp.BySearch))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s", ErrElementTimeout, xpath)
	}
	return fmt.Errorf("failed waiting for %s: %w", xpath, err)
}

// WaitForURL polls the current URL until it matches pattern. A zero timeout
// uses the configured URL timeout.
func (s *Session) WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}
	if timeout <= 0 {
		timeout = s.urlTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last string
	for {
		var url string
		if err := s.run(waitCtx, 0, chromedp.Location(&url)); err == nil {
			last = url
			if re.MatchString(url) {
				return nil
			}
		} else if errors.Is(err, ErrSessionClosed) {
			return err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("URL did not match in time.", zap.String("pattern", pattern), zap.String("last_url", last))
			return fmt.Errorf("%w: %s", ErrURLTimeout, pattern)
		case <-ticker.C:
		}
	}
}

// Click waits for xpath and clicks the first match.
func (s *Session) Click(ctx context.Context, xpath string) error {
	if err := s.WaitForElement(ctx, xpath, 0); err != nil {
		return err
	}
	if err := s.run(ctx, s.elementTimeout, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("failed to click %s: %w", xpath, err)
	}
	return nil
}

// ClickNth clicks the index-th element matching xpath without waiting.
// It returns false when there are not enough matches.
func (s *Session) ClickNth(ctx context.Context, xpath string, index int) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, s.elementTimeout, chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", xpath, err)
	}
	if index < 0 || len(nodes) <= index {
		return false, nil
	}
	if err := s.run(ctx, s.elementTimeout, chromedp.MouseClickNode(nodes[index])); err != nil {
		return false, fmt.Errorf("failed to click %s[%d]: %w", xpath, index, err)
	}
	return true, nil
}

// ClickWithin clicks the first element matching the CSS childQuery inside
// the first match of parentXPath.
func (s *Session) ClickWithin(ctx context.Context, parentXPath, childQuery string) error {
	if err := s.WaitForElement(ctx, parentXPath, 0); err != nil {
		return err
	}
	var parents []*cdp.Node
	if err := s.run(ctx, s.elementTimeout, chromedp.Nodes(parentXPath, &parents, chromedp.BySearch)); err != nil {
		return fmt.Errorf("failed to query %s: %w", parentXPath, err)
	}
	err := s.run(ctx, s.elementTimeout, chromedp.Click(childQuery, chromedp.ByQuery, chromedp.FromNode(parents[0])))
	if err != nil {
		return fmt.Errorf("failed to click %s within %s: %w", childQuery, parentXPath, err)
	}
	return nil
}

// Type waits for xpath and sends text to it. The text itself is never logged.
func (s *Session) Type(ctx context.Context, xpath, text string) error {
	if err := s.WaitForElement(ctx, xpath, 0); err != nil {
		return err
	}
	if err := s.run(ctx, s.elementTimeout, chromedp.SendKeys(xpath, text, chromedp.BySearch)); err != nil {
		return fmt.Errorf("failed to type into %s: %w", xpath, err)
	}
	s.logger.Debug("Sent keys.", zap.String("element", xpath), zap.Int("length", len(text)))
	return nil
}

// Text returns the visible text of the first element matching xpath.
func (s *Session) Text(ctx context.Context, xpath string) (string, error) {
	var text string
	if err := s.run(ctx, s.elementTimeout, chromedp.Text(xpath, &text, chromedp.BySearch)); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", xpath, err)
	}
	return text, nil
}

// AttributeValues returns attr of every element matching xpath, in document order.
// Elements without the attribute are skipped.
func (s *Session) AttributeValues(ctx context.Context, xpath, attr string) ([]string, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, s.elementTimeout, chromedp.Nodes(xpath, &nodes, chromedp.BySearch)); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", xpath, err)
	}
	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if v, ok := n.Attribute(attr); ok {
			values = append(values, v)
		}
	}
	return values, nil
}

// FrameText returns the text of the element matching the CSS query inside
// the first iframe matching iframeXPath.
func (s *Session) FrameText(ctx context.Context, iframeXPath, query string) (string, error) {
	var frames []*cdp.Node
	if err := s.run(ctx, s.elementTimeout, chromedp.Nodes(iframeXPath, &frames, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", iframeXPath, err)
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: %s", ErrFrameNotFound, iframeXPath)
	}

	var text string
	err := s.run(ctx, s.elementTimeout, chromedp.Text(query, &text, chromedp.ByQuery, chromedp.FromNode(frames[0])))
	if err != nil {
		return "", fmt.Errorf("failed to read %s inside %s: %w", query, iframeXPath, err)
	}
	return text, nil
}

// Back navigates one step back in the tab history.
func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, s.navigationTimeout, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

// PerformActionSet runs set against this tab. See ActionSet.
func (s *Session) PerformActionSet(ctx context.Context, set ActionSet, values ...string) error {
	return performActionSet(ctx, s, s.logger, set, values...)
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.logger.Debug("Closing session.")
	// Canceling a tab context closes the target.
	s.cancel()

	if onClose != nil {
		onClose()
	}
	return nil
}
