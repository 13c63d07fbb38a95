// internal/browser/cookies.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/renameio/v2"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// Cookie is the on-disk form of a browser cookie. Expiry is in Unix seconds
// and zero for session cookies.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite,omitempty"`
	Expiry   int64  `json:"expiry,omitempty"`
}

// cookieRecord accepts both "expiry" and "expires", as integer or float.
type cookieRecord struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"httpOnly"`
	SameSite string   `json:"sameSite"`
	Expiry   *float64 `json:"expiry"`
	Expires  *float64 `json:"expires"`
}

func (r cookieRecord) cookie() Cookie {
	c := Cookie{
		Name:     r.Name,
		Value:    r.Value,
		Domain:   r.Domain,
		Path:     r.Path,
		Secure:   r.Secure,
		HTTPOnly: r.HTTPOnly,
		SameSite: r.SameSite,
	}
	switch {
	case r.Expiry != nil:
		c.Expiry = int64(math.Floor(*r.Expiry))
	case r.Expires != nil:
		c.Expiry = int64(math.Floor(*r.Expires))
	}
	if c.Expiry < 0 {
		c.Expiry = 0
	}
	return c
}

// ReadCookieFile parses a cookie file.
func ReadCookieFile(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}
	cookies := make([]Cookie, 0, len(records))
	for _, r := range records {
		cookies = append(cookies, r.cookie())
	}
	return cookies, nil
}

// WriteCookieFile atomically replaces path with cookies. Parent directories
// are created.
func WriteCookieFile(path string, cookies []Cookie) error {
	if cookies == nil {
		cookies = []Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending cookie file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write cookie data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace cookie file: %w", err)
	}
	return nil
}

func cookieFromNetwork(c *network.Cookie) Cookie {
	out := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: string(c.SameSite),
	}
	if !c.Session && c.Expires > 0 {
		out.Expiry = int64(c.Expires)
	}
	return out
}

func (c Cookie) param() *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if c.SameSite != "" {
		p.SameSite = network.CookieSameSite(c.SameSite)
	}
	if c.Expiry > 0 {
		expires := cdp.TimeSinceEpoch(time.Unix(c.Expiry, 0))
		p.Expires = &expires
	}
	return p
}

// Cookies returns every cookie the browser holds.
func (s *Session) Cookies(ctx context.Context) ([]Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, s.elementTimeout, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, cookieFromNetwork(c))
	}
	return cookies, nil
}

// SaveCookies writes the browser cookies to path.
func (s *Session) SaveCookies(ctx context.Context, path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand cookie path: %w", err)
	}
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return err
	}
	if err := WriteCookieFile(expanded, cookies); err != nil {
		return err
	}
	s.logger.Info("Saved cookies.", zap.String("path", expanded), zap.Int("count", len(cookies)))
	return nil
}

// LoadCookies restores cookies from path into the browser. It reports false
// without error when path does not exist or is a directory.
func (s *Session) LoadCookies(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return false, fmt.Errorf("expand cookie path: %w", err)
	}
	info, err := os.Stat(expanded)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat cookie file: %w", err)
	}
	if info.IsDir() {
		return false, nil
	}

	cookies, err := ReadCookieFile(expanded)
	if err != nil {
		return false, err
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, c.param())
	}

	// Network.setCookies needs the Network domain enabled.
	err = s.run(ctx, s.elementTimeout,
		network.Enable(),
		network.SetCookies(params),
		network.Disable(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to set cookies: %w", err)
	}
	s.logger.Info("Loaded cookies.", zap.String("path", expanded), zap.Int("count", len(cookies)))
	return true, nil
}
