// internal/atoz/client.go
package atoz

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/browser"
	"github.com/xkilldash9x/autologin/internal/config"
)

const (
	LoginURL = "https://atoz-login.amazon.work/"

	// SSOURLPattern matches the IdP page that asks for the password.
	SSOURLPattern = `^https://idp.amazon.work/idp/profile/SAML2/Unsolicited/SSO?`
	// PassportURLPattern matches the IdP page that asks for a verification method.
	PassportURLPattern = `^https://idp.amazon.work/idp/enter\?sif_profile=amazon-passport`

	continueButton = `//*[@id="buttonContinue"]`
)

var idpURL = regexp.MustCompile(`^https://idp\.amazon\.work/`)

var (
	// LoginOne submits the associate login.
	LoginOne = browser.ActionSet{
		browser.TypeAction(`//*[@id="associate-login-input"]`),
		browser.ClickAction(`//*[@id="login-form-login-btn"]`),
	}
	// LoginTwo submits the password.
	LoginTwo = browser.ActionSet{
		browser.TypeAction(`//*[@id="password"]`),
		browser.ClickAction(`//*[@id="buttonLogin"]`),
	}
)

var (
	ErrMissingCredentials = errors.New("atoz: username and password are required")
	// ErrUnexpectedPage is returned when the login ends on a page the flow does not know.
	ErrUnexpectedPage = errors.New("atoz: unexpected page after login")
)

// Result tells how Authenticate ended.
type Result int

// ResultUnknown accompanies every error.
const (
	ResultUnknown Result = iota
	ResultAlreadyAuthenticated
	ResultLoggedIn
)

func (r Result) String() string {
	switch r {
	case ResultUnknown:
		return "unknown"
	case ResultAlreadyAuthenticated:
		return "already_authenticated"
	case ResultLoggedIn:
		return "logged_in"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Page is the part of a browser tab the login flow drives.
type Page interface {
	LoadCookies(ctx context.Context, path string) (bool, error)
	SaveCookies(ctx context.Context, path string) error
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PerformActionSet(ctx context.Context, set browser.ActionSet, values ...string) error
	WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error
	ClickWithin(ctx context.Context, parentXPath, childQuery string) error
	Click(ctx context.Context, xpath string) error
}

// CodeProvider supplies the verification code sent to the user.
type CodeProvider interface {
	Code(ctx context.Context) (string, error)
}

// Selectors locate the verification step elements.
type Selectors struct {
	CodeInput    string
	VerifyButton string
}

// Options tune a single Authenticate call.
type Options struct {
	SaveCookies bool
	// PassportTimeout bounds the wait for the verification page. Zero uses the page default.
	PassportTimeout time.Duration
}

// Client logs into the AtoZ portal.
type Client struct {
	Username          string
	Password          string
	VerificationEmail string
	CookiesFile       string
	Selectors         Selectors

	logger *zap.Logger
}

// NewClient creates a client from the atoz config section.
func NewClient(cfg config.AtoZConfig, logger *zap.Logger) *Client {
	return &Client{
		Username:          cfg.Username,
		Password:          cfg.Password,
		VerificationEmail: cfg.VerificationEmail,
		CookiesFile:       cfg.CookiesFile,
		Selectors: Selectors{
			CodeInput:    cfg.Selectors.CodeInput,
			VerifyButton: cfg.Selectors.VerifyButton,
		},
		logger: logger.Named("atoz"),
	}
}

// VerifyActions returns the action set that submits the verification code.
func (c *Client) VerifyActions() browser.ActionSet {
	input, button := c.Selectors.CodeInput, c.Selectors.VerifyButton
	if input == "" {
		input = `//*[@id="code"]`
	}
	if button == "" {
		button = `//*[@id="buttonVerifyIdentity"]`
	}
	return browser.ActionSet{browser.TypeAction(input), browser.ClickAction(button)}
}

// Authenticate runs the login flow in page. Saved cookies are tried first;
// when they are still valid the portal skips the login page.
func (c *Client) Authenticate(ctx context.Context, page Page, codes CodeProvider, opts Options) (Result, error) {
	if c.Username == "" || c.Password == "" {
		return ResultUnknown, ErrMissingCredentials
	}

	if c.CookiesFile != "" {
		loaded, err := page.LoadCookies(ctx, c.CookiesFile)
		if err != nil {
			c.logger.Warn("Could not load cookies, continuing with a fresh login.", zap.Error(err))
		} else if !loaded {
			c.logger.Debug("No cookie file to load.", zap.String("path", c.CookiesFile))
		}
	}

	if err := page.Navigate(ctx, LoginURL); err != nil {
		return ResultUnknown, err
	}
	current, err := page.CurrentURL(ctx)
	if err != nil {
		return ResultUnknown, err
	}
	if current != LoginURL {
		c.logger.Info("Already authenticated.", zap.String("url", current))
		if err := c.saveCookies(ctx, page, opts); err != nil {
			return ResultUnknown, err
		}
		return ResultAlreadyAuthenticated, nil
	}

	if err := page.PerformActionSet(ctx, LoginOne, c.Username); err != nil {
		return ResultUnknown, fmt.Errorf("submit username: %w", err)
	}
	if err := page.WaitForURL(ctx, SSOURLPattern, 0); err != nil {
		return ResultUnknown, fmt.Errorf("wait for sign-in page: %w", err)
	}
	if err := page.PerformActionSet(ctx, LoginTwo, c.Password); err != nil {
		return ResultUnknown, fmt.Errorf("submit password: %w", err)
	}

	err = page.WaitForURL(ctx, PassportURLPattern, opts.PassportTimeout)
	switch {
	case err == nil && c.VerificationEmail == "":
		c.logger.Warn("Verification requested but no verification email is configured, skipping.")
	case err == nil:
		if err := c.verify(ctx, page, codes); err != nil {
			return ResultUnknown, err
		}
	case errors.Is(err, browser.ErrURLTimeout):
		current, err := page.CurrentURL(ctx)
		if err != nil {
			return ResultUnknown, err
		}
		if idpURL.MatchString(current) {
			return ResultUnknown, fmt.Errorf("%w: %s", ErrUnexpectedPage, current)
		}
		c.logger.Debug("No verification step requested.")
	default:
		return ResultUnknown, fmt.Errorf("wait for verification page: %w", err)
	}

	if err := c.saveCookies(ctx, page, opts); err != nil {
		return ResultUnknown, err
	}
	c.logger.Info("Logged in.")
	return ResultLoggedIn, nil
}

func (c *Client) verify(ctx context.Context, page Page, codes CodeProvider) error {
	if codes == nil {
		return fmt.Errorf("atoz: no verification code provider")
	}

	masked := ObfuscateEmail(c.VerificationEmail)
	c.logger.Info("Verification requested.", zap.String("method", masked))

	label := fmt.Sprintf("//label[normalize-space()=%s]", browser.XPathLiteral(masked))
	if err := page.ClickWithin(ctx, label, "input"); err != nil {
		return fmt.Errorf("select verification email: %w", err)
	}
	if err := page.Click(ctx, continueButton); err != nil {
		return fmt.Errorf("request verification code: %w", err)
	}

	code, err := codes.Code(ctx)
	if err != nil {
		return fmt.Errorf("obtain verification code: %w", err)
	}
	if err := page.PerformActionSet(ctx, c.VerifyActions(), code); err != nil {
		return fmt.Errorf("submit verification code: %w", err)
	}
	return nil
}

func (c *Client) saveCookies(ctx context.Context, page Page, opts Options) error {
	if !opts.SaveCookies || c.CookiesFile == "" {
		return nil
	}
	if err := page.SaveCookies(ctx, c.CookiesFile); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}
