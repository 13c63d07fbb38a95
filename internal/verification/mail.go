// internal/verification/mail.go
package verification

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPollInterval is how often a mailbox is searched for the code.
const DefaultPollInterval = 5 * time.Second

// Message is one mail as far as code extraction is concerned. A zero
// Received means the mailbox could not tell.
type Message struct {
	ID       string
	Text     string
	Received time.Time
}

// Searcher lists and reads mail.
type Searcher interface {
	Search(ctx context.Context, sender string, since time.Time) ([]string, error)
	Read(ctx context.Context, id string) (Message, error)
}

// MailProvider waits for the code to arrive by mail.
type MailProvider struct {
	Searcher     Searcher
	Sender       string
	Pattern      *regexp.Regexp
	PollInterval time.Duration
	// Since excludes older mail, so a code from an earlier login is not reused.
	Since time.Time

	logger *zap.Logger
}

// NewMailProvider creates a provider polling searcher for mail from sender newer than since.
func NewMailProvider(searcher Searcher, sender string, since time.Time, logger *zap.Logger) *MailProvider {
	return &MailProvider{
		Searcher:     searcher,
		Sender:       sender,
		PollInterval: DefaultPollInterval,
		Since:        since,
		logger:       logger.Named("verification"),
	}
}

// Code polls the mailbox until a matching message carries a code or ctx ends.
// Search failures are logged and retried on the next poll.
func (p *MailProvider) Code(ctx context.Context) (string, error) {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := p.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	checked := make(map[string]struct{})

	for {
		if err := limiter.Wait(ctx); err != nil {
			// The limiter gives up early when the next poll would pass the deadline.
			<-ctx.Done()
			return "", ctx.Err()
		}

		ids, err := p.Searcher.Search(ctx, p.Sender, p.Since)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("Mail search failed, will retry.", zap.Error(err))
			continue
		}

		for _, id := range ids {
			if _, ok := checked[id]; ok {
				continue
			}
			msg, err := p.Searcher.Read(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				logger.Warn("Could not read message, will retry.", zap.String("id", id), zap.Error(err))
				continue
			}
			checked[id] = struct{}{}
			if !msg.Received.IsZero() && msg.Received.Before(p.Since) {
				continue
			}
			if code, ok := ExtractCode(msg.Text, p.Pattern); ok {
				logger.Info("Verification code found.", zap.String("id", id))
				return code, nil
			}
		}
		logger.Debug("No code yet.", zap.Int("messages", len(ids)))
	}
}
