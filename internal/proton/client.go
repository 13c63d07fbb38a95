// internal/proton/client.go
package proton

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/browser"
	"github.com/xkilldash9x/autologin/internal/config"
)

const (
	SignInURL = "https://account.proton.me/mail"
	// LoggedInPattern matches the mail app and captures the account number.
	LoggedInPattern = `https://mail.proton.me/u/(\d+)`

	mailBase         = "https://mail.proton.me/u/"
	messageListItem  = "//*[@data-element-id]"
	messageBody      = "//*[@data-testid='message-content:body']"
	contentIframe    = "//*[@data-testid='content-iframe']"
	backButton       = "//*[@data-testid='toolbar:back-button']"
	contentRootQuery = "#proton-root"
)

var (
	loggedIn  = regexp.MustCompile(LoggedInPattern)
	messageID = regexp.MustCompile(`^https://mail.proton.me/u/\d+/(?:almost-all-mail/)?([A-Za-z0-9_-]+={0,2}).*$`)
)

// SignIn fills the login form: username, password, "keep me signed in", submit.
var SignIn = browser.ActionSet{
	browser.TypeAction(`//*[@id="username"]`),
	browser.TypeAction(`//*[@id="password"]`),
	browser.ClickAction(`//*[@id="staySignedIn"]`),
	browser.ClickAction(`/html/body/div[1]/div[4]/div[1]/main/div[1]/div[2]/form/button`),
}

var (
	ErrNotLoggedIn          = errors.New("proton: not logged in")
	ErrMissingCredentials   = errors.New("proton: email and password are required")
	ErrUnexpectedMessageURL = errors.New("proton: message url does not have the expected structure")
)

// Page is the part of a browser tab the mail client drives.
type Page interface {
	LoadCookies(ctx context.Context, path string) (bool, error)
	SaveCookies(ctx context.Context, path string) error
	NavigateAndWait(ctx context.Context, url, urlPattern string, elements ...string) error
	CurrentURL(ctx context.Context) (string, error)
	PerformActionSet(ctx context.Context, set browser.ActionSet, values ...string) error
	WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error
	WaitForElement(ctx context.Context, xpath string, timeout time.Duration) error
	AttributeValues(ctx context.Context, xpath, attr string) ([]string, error)
	Click(ctx context.Context, xpath string) error
	Back(ctx context.Context) error
	FrameText(ctx context.Context, iframeXPath, query string) (string, error)
}

// Query selects messages in the search view. Zero fields are left out.
type Query struct {
	From  string
	Begin time.Time
}

// URL builds the search address for account.
func (q Query) URL(account string) string {
	var parts []string
	if q.From != "" {
		parts = append(parts, "from="+url.QueryEscape(q.From))
	}
	if !q.Begin.IsZero() {
		parts = append(parts, "begin="+strconv.FormatInt(q.Begin.Unix(), 10))
	}
	return mailBase + account + "/almost-all-mail#" + strings.Join(parts, "&")
}

// Client drives the ProtonMail web app in a browser tab.
type Client struct {
	Email       string
	Password    string
	CookiesFile string

	page   Page
	logger *zap.Logger

	mu      sync.Mutex
	account string
}

// NewClient creates a client bound to page.
func NewClient(cfg config.ProtonConfig, page Page, logger *zap.Logger) *Client {
	return &Client{
		Email:       cfg.Email,
		Password:    cfg.Password,
		CookiesFile: cfg.CookiesFile,
		page:        page,
		logger:      logger.Named("proton"),
	}
}

// Account returns the account number of the logged in user, or "".
func (c *Client) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Client) setAccount(a string) {
	c.mu.Lock()
	c.account = a
	c.mu.Unlock()
}

// Login signs in, reusing saved cookies when they are still valid.
func (c *Client) Login(ctx context.Context) error {
	if c.CookiesFile != "" {
		if _, err := c.page.LoadCookies(ctx, c.CookiesFile); err != nil {
			c.logger.Warn("Could not load cookies, continuing with a fresh login.", zap.Error(err))
		}
	}

	if err := c.page.NavigateAndWait(ctx, SignInURL, ""); err != nil {
		return err
	}
	current, err := c.page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if m := loggedIn.FindStringSubmatch(current); m != nil {
		c.setAccount(m[1])
		c.logger.Info("Already authenticated.", zap.String("account", m[1]))
		return nil
	}

	if c.Email == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	for _, xpath := range SignIn.Elements()[:3] {
		if err := c.page.WaitForElement(ctx, xpath, 0); err != nil {
			return fmt.Errorf("wait for sign-in form: %w", err)
		}
	}
	if err := c.page.PerformActionSet(ctx, SignIn, c.Email, c.Password); err != nil {
		return fmt.Errorf("submit sign-in form: %w", err)
	}
	if err := c.page.WaitForURL(ctx, LoggedInPattern, 0); err != nil {
		return fmt.Errorf("wait for mailbox: %w", err)
	}

	current, err = c.page.CurrentURL(ctx)
	if err != nil {
		return err
	}
	m := loggedIn.FindStringSubmatch(current)
	if m == nil {
		return fmt.Errorf("%w: landed on %s", ErrNotLoggedIn, current)
	}
	c.setAccount(m[1])
	c.logger.Info("Logged in.", zap.String("account", m[1]))

	if c.CookiesFile != "" {
		if err := c.page.SaveCookies(ctx, c.CookiesFile); err != nil {
			return fmt.Errorf("save cookies: %w", err)
		}
	}
	return nil
}

// Search returns the IDs of the messages matching q, as they appear in the list.
func (c *Client) Search(ctx context.Context, q Query) ([]string, error) {
	account := c.Account()
	if account == "" {
		return nil, ErrNotLoggedIn
	}

	if err := c.page.NavigateAndWait(ctx, q.URL(account), LoggedInPattern); err != nil {
		return nil, err
	}
	if err := c.page.WaitForElement(ctx, messageListItem, 0); err != nil {
		if errors.Is(err, browser.ErrElementTimeout) {
			// An empty result list renders no items.
			return []string{}, nil
		}
		return nil, err
	}
	elements, err := c.page.AttributeValues(ctx, messageListItem, "data-element-id")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(elements))
	for _, element := range elements {
		id, err := c.openMessage(ctx, element)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	c.logger.Debug("Search finished.", zap.Int("messages", len(ids)))
	return ids, nil
}

// openMessage opens one list item, reads the message ID from the URL and goes back to the list.
func (c *Client) openMessage(ctx context.Context, element string) (string, error) {
	if err := c.page.Click(ctx, fmt.Sprintf("//*[@data-element-id=%s]", browser.XPathLiteral(element))); err != nil {
		return "", err
	}
	if err := c.page.WaitForElement(ctx, messageBody, 0); err != nil {
		return "", err
	}
	current, err := c.page.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	m := messageID.FindStringSubmatch(current)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedMessageURL, current)
	}

	if err := c.page.Click(ctx, backButton); err != nil {
		return "", err
	}
	if err := c.page.WaitForElement(ctx, messageListItem, 0); err != nil {
		return "", err
	}
	return m[1], nil
}

// MessageText returns the plain text body of message id.
func (c *Client) MessageText(ctx context.Context, id string) (string, error) {
	account := c.Account()
	if account == "" {
		return "", ErrNotLoggedIn
	}
	target := mailBase + account + "/inbox/" + id
	if err := c.page.NavigateAndWait(ctx, target, LoggedInPattern, contentIframe); err != nil {
		return "", err
	}
	text, err := c.page.FrameText(ctx, contentIframe, contentRootQuery)
	if err != nil {
		return "", fmt.Errorf("read message %s: %w", id, err)
	}
	return strings.TrimSpace(text), nil
}
