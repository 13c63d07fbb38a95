// internal/verification/adapters.go
package verification

import (
	"context"
	"time"

	"github.com/xkilldash9x/autologin/internal/gmail"
	"github.com/xkilldash9x/autologin/internal/proton"
)

// GmailMailbox is the part of the Gmail client the adapter needs.
type GmailMailbox interface {
	SearchEmails(ctx context.Context, sender string, startDate time.Time) ([]string, error)
	ReadEmail(ctx context.Context, id string) (*gmail.Email, error)
}

// ProtonMailbox is the part of the Proton client the adapter needs.
type ProtonMailbox interface {
	Search(ctx context.Context, q proton.Query) ([]string, error)
	MessageText(ctx context.Context, id string) (string, error)
}

// Gmail adapts a Gmail client to a Searcher.
func Gmail(c GmailMailbox) Searcher { return gmailSearcher{c} }

// Proton adapts a Proton client to a Searcher.
func Proton(c ProtonMailbox) Searcher { return protonSearcher{c} }

type gmailSearcher struct{ c GmailMailbox }

func (g gmailSearcher) Search(ctx context.Context, sender string, since time.Time) ([]string, error) {
	return g.c.SearchEmails(ctx, sender, since)
}

func (g gmailSearcher) Read(ctx context.Context, id string) (Message, error) {
	email, err := g.c.ReadEmail(ctx, id)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: email.ID, Text: email.Text(), Received: email.Date}, nil
}

type protonSearcher struct{ c ProtonMailbox }

func (p protonSearcher) Search(ctx context.Context, sender string, since time.Time) ([]string, error) {
	return p.c.Search(ctx, proton.Query{From: sender, Begin: since})
}

// Read leaves Received zero; the search already filtered by date.
func (p protonSearcher) Read(ctx context.Context, id string) (Message, error) {
	text, err := p.c.MessageText(ctx, id)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, Text: text}, nil
}
