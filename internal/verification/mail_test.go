// internal/verification/mail_test.go
package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autologin/internal/gmail"
	"github.com/xkilldash9x/autologin/internal/proton"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, sender string, since time.Time) ([]string, error) {
	args := m.Called(ctx, sender, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSearcher) Read(ctx context.Context, id string) (Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Message), args.Error(1)
}

var since = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func newTestProvider(t *testing.T, s Searcher) *MailProvider {
	p := NewMailProvider(s, "no-reply@amazon.com", since, zaptest.NewLogger(t))
	p.PollInterval = time.Millisecond
	return p
}

func TestMailProvider_FindsCode(t *testing.T) {
	s := new(mockSearcher)
	ctx := context.Background()

	s.On("Search", ctx, "no-reply@amazon.com", since).Return([]string{}, nil).Once()
	s.On("Search", ctx, "no-reply@amazon.com", since).Return(nil, errors.New("temporary outage")).Once()
	s.On("Search", ctx, "no-reply@amazon.com", since).Return([]string{"new", "old"}, nil)
	s.On("Read", ctx, "new").Return(Message{ID: "new", Text: "Your code: 918273", Received: since.Add(time.Minute)}, nil).Once()

	code, err := newTestProvider(t, s).Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "918273", code)
	s.AssertNotCalled(t, "Read", ctx, "old")
}

func TestMailProvider_SkipsStaleAndCheckedMessages(t *testing.T) {
	s := new(mockSearcher)
	ctx := context.Background()

	s.On("Search", ctx, mock.Anything, mock.Anything).Return([]string{"stale", "nocode"}, nil).Once()
	s.On("Search", ctx, mock.Anything, mock.Anything).Return([]string{"fresh", "stale", "nocode"}, nil).Once()
	s.On("Read", ctx, "stale").Return(Message{ID: "stale", Text: "code 111111", Received: since.Add(-time.Hour)}, nil).Once()
	s.On("Read", ctx, "nocode").Return(Message{ID: "nocode", Text: "newsletter"}, nil).Once()
	s.On("Read", ctx, "fresh").Return(Message{ID: "fresh", Text: "code 222222"}, nil).Once()

	code, err := newTestProvider(t, s).Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "222222", code)
	s.AssertExpectations(t)
}

func TestMailProvider_ReadFailureIsRetried(t *testing.T) {
	s := new(mockSearcher)
	ctx := context.Background()

	s.On("Search", ctx, mock.Anything, mock.Anything).Return([]string{"m1"}, nil)
	s.On("Read", ctx, "m1").Return(Message{}, errors.New("frame not found")).Once()
	s.On("Read", ctx, "m1").Return(Message{ID: "m1", Text: "333333"}, nil).Once()

	code, err := newTestProvider(t, s).Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "333333", code)
}

func TestMailProvider_StopsWithContext(t *testing.T) {
	s := new(mockSearcher)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s.On("Search", ctx, mock.Anything, mock.Anything).Return([]string{}, nil)

	_, err := newTestProvider(t, s).Code(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeGmail struct {
	ids    []string
	emails map[string]*gmail.Email
	sender string
	start  time.Time
}

func (f *fakeGmail) SearchEmails(_ context.Context, sender string, start time.Time) ([]string, error) {
	f.sender, f.start = sender, start
	return f.ids, nil
}

func (f *fakeGmail) ReadEmail(_ context.Context, id string) (*gmail.Email, error) {
	e, ok := f.emails[id]
	if !ok {
		return nil, gmail.ErrNotAuthenticated
	}
	return e, nil
}

type fakeProton struct {
	query proton.Query
	texts map[string]string
}

func (f *fakeProton) Search(_ context.Context, q proton.Query) ([]string, error) {
	f.query = q
	ids := make([]string, 0, len(f.texts))
	for id := range f.texts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeProton) MessageText(_ context.Context, id string) (string, error) {
	return f.texts[id], nil
}

func TestGmailAdapter(t *testing.T) {
	received := since.Add(2 * time.Minute)
	g := &fakeGmail{
		ids: []string{"m1"},
		emails: map[string]*gmail.Email{
			"m1": {ID: "m1", Subject: "Your verification code", Snippet: "Use 445566 to sign in", Date: received},
		},
	}
	s := Gmail(g)
	ctx := context.Background()

	ids, err := s.Search(ctx, "no-reply@amazon.com", since)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)
	assert.Equal(t, "no-reply@amazon.com", g.sender)
	assert.True(t, g.start.Equal(since))

	msg, err := s.Read(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, Message{ID: "m1", Text: "Your verification code\nUse 445566 to sign in", Received: received}, msg)

	_, err = s.Read(ctx, "missing")
	assert.ErrorIs(t, err, gmail.ErrNotAuthenticated)
}

func TestProtonAdapter(t *testing.T) {
	p := &fakeProton{texts: map[string]string{"abc=": "Code 778899"}}
	s := Proton(p)
	ctx := context.Background()

	ids, err := s.Search(ctx, "no-reply@amazon.com", since)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc="}, ids)
	assert.Equal(t, proton.Query{From: "no-reply@amazon.com", Begin: since}, p.query)

	code, err := newTestProvider(t, s).Code(ctx)
	require.NoError(t, err)
	assert.Equal(t, "778899", code)
}
