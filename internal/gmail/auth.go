// internal/gmail/auth.go
package gmail

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var (
	// ErrStateMismatch is returned when the OAuth redirect carries a state we did not issue.
	ErrStateMismatch = errors.New("gmail: oauth state mismatch")
	// ErrAuthorizationDenied is returned when the user declines the consent screen.
	ErrAuthorizationDenied = errors.New("gmail: authorization denied")
)

// AuthOptions tune Authenticate.
type AuthOptions struct {
	// SaveToken writes a new or refreshed token to the token file.
	SaveToken bool
	// ShowURL receives the consent page address. Nil prints it to stderr.
	ShowURL func(authURL string)
}

// Authenticate prepares the Gmail service. It is a no-op once it has succeeded.
// A cached token is used when valid, refreshed when it carries a refresh token,
// and replaced through the browser consent flow otherwise.
func (c *Client) Authenticate(ctx context.Context, opts AuthOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.service != nil {
		return nil
	}

	oauthCfg, err := c.oauthConfig()
	if err != nil {
		return err
	}

	tok := c.cachedToken()
	if tok == nil || !tok.Valid() {
		tok, err = c.renewToken(ctx, oauthCfg, tok, opts.ShowURL)
		if err != nil {
			return err
		}
		if opts.SaveToken && c.TokenFile != "" {
			if err := writeToken(c.TokenFile, tok); err != nil {
				return err
			}
			c.logger.Info("Token saved.", zap.String("path", c.TokenFile))
		}
	}

	// Refreshes may happen long after ctx is gone.
	ts := oauthCfg.TokenSource(context.WithoutCancel(ctx), tok)
	clientOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.APIOptions...)
	svc, err := gmailapi.NewService(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("could not create gmail service: %w", err)
	}
	c.service = svc
	c.logger.Debug("Gmail service ready.")
	return nil
}

func (c *Client) oauthConfig() (*oauth2.Config, error) {
	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmailapi.GmailReadonlyScope}
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file %s: %w", c.CredentialsFile, err)
	}
	return cfg, nil
}

func (c *Client) cachedToken() *oauth2.Token {
	if c.TokenFile == "" {
		return nil
	}
	tok, err := readToken(c.TokenFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Ignoring unreadable token file.", zap.String("path", c.TokenFile), zap.Error(err))
		}
		return nil
	}
	return tok
}

func (c *Client) renewToken(ctx context.Context, cfg *oauth2.Config, stale *oauth2.Token, show func(string)) (*oauth2.Token, error) {
	if stale != nil && stale.RefreshToken != "" {
		tok, err := cfg.TokenSource(ctx, stale).Token()
		if err == nil {
			c.logger.Debug("Token refreshed.")
			return tok, nil
		}
		c.logger.Warn("Token refresh failed, falling back to the consent flow.", zap.Error(err))
	}
	return c.runLocalFlow(ctx, cfg, show)
}

type redirectResult struct {
	code string
	err  error
}

// runLocalFlow performs the installed-app flow: a loopback listener receives the redirect.
func (c *Client) runLocalFlow(ctx context.Context, cfg *oauth2.Config, show func(string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}

	flowCfg := *cfg
	flowCfg.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := flowCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	results := make(chan redirectResult, 1)
	srv := &http.Server{
		Handler:           redirectHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if show == nil {
		show = func(u string) {
			fmt.Fprintf(os.Stderr, "Open the following link in your browser to authorize access:\n\n%s\n\n", u)
		}
	}
	show(authURL)
	c.logger.Info("Waiting for the oauth redirect.", zap.String("redirect_url", flowCfg.RedirectURL))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := flowCfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}
		return tok, nil
	}
}

func redirectHandler(state string, results chan<- redirectResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		var res redirectResult
		switch {
		case q.Get("state") != state:
			res.err = ErrStateMismatch
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrAuthorizationDenied, q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("gmail: redirect carried no authorization code")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authentication complete. You may close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})
}
