// internal/gmail/client.go
package gmail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xkilldash9x/autologin/internal/config"
)

const (
	userID     = "me"
	maxRetries = 3
)

// ErrNotAuthenticated is returned by API calls made before Authenticate.
var ErrNotAuthenticated = errors.New("gmail: not authenticated")

// Email is the summary of one message.
type Email struct {
	ID      string
	Subject string
	Snippet string
	Date    time.Time
}

// Text joins the subject and snippet, which is where login codes show up.
func (e *Email) Text() string {
	return strings.TrimSpace(e.Subject + "\n" + e.Snippet)
}

// Client reads a Gmail mailbox through the Gmail API.
type Client struct {
	CredentialsFile string
	TokenFile       string
	Scopes          []string
	// APIOptions are appended when the Gmail service is created.
	APIOptions []option.ClientOption

	logger         *zap.Logger
	backoffFactory func() backoff.BackOff

	mu      sync.Mutex
	service *gmailapi.Service
}

// NewClient creates an unauthenticated client from the gmail config section.
func NewClient(cfg config.GmailConfig, logger *zap.Logger) *Client {
	return &Client{
		CredentialsFile: cfg.CredentialsFile,
		TokenFile:       cfg.TokenFile,
		Scopes:          cfg.Scopes,
		logger:          logger.Named("gmail"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// Authenticated reports whether Authenticate has succeeded.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service != nil
}

func (c *Client) svc() (*gmailapi.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.service == nil {
		return nil, ErrNotAuthenticated
	}
	return c.service, nil
}

// SearchQuery builds the Gmail search expression for sender and start. Empty
// parts are left out.
func SearchQuery(sender string, start time.Time) string {
	var parts []string
	if sender != "" {
		parts = append(parts, "from:"+sender)
	}
	if !start.IsZero() {
		parts = append(parts, "after:"+start.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

// SearchEmails returns the IDs of all messages from sender received after startDate.
func (c *Client) SearchEmails(ctx context.Context, sender string, startDate time.Time) ([]string, error) {
	svc, err := c.svc()
	if err != nil {
		return nil, err
	}
	query := SearchQuery(sender, startDate)

	ids := []string{}
	pageToken := ""
	for {
		var resp *gmailapi.ListMessagesResponse
		err := c.retry(ctx, "list messages", func() error {
			call := svc.Users.Messages.List(userID).Q(query).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("search emails: %w", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.logger.Debug("Search finished.", zap.String("query", query), zap.Int("messages", len(ids)))
	return ids, nil
}

// ReadEmail fetches the subject, snippet and date of message id.
func (c *Client) ReadEmail(ctx context.Context, id string) (*Email, error) {
	svc, err := c.svc()
	if err != nil {
		return nil, err
	}

	var msg *gmailapi.Message
	err = c.retry(ctx, "get message", func() error {
		var err error
		msg, err = svc.Users.Messages.Get(userID, id).Format("metadata").MetadataHeaders("Subject").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read email %s: %w", id, err)
	}

	email := &Email{
		ID:      msg.Id,
		Snippet: html.UnescapeString(msg.Snippet),
	}
	if msg.InternalDate > 0 {
		email.Date = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "Subject") {
				email.Subject = h.Value
				break
			}
		}
	}
	return email, nil
}

// retry runs op, retrying rate limits, server errors and network failures.
func (c *Client) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(c.backoffFactory(), maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("Gmail API call failed, retrying...", zap.String("call", name), zap.Error(err))
		return err
	}, b)
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}
