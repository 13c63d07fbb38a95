package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/autologin/internal/atoz"
	"github.com/xkilldash9x/autologin/internal/config"
	"github.com/xkilldash9x/autologin/internal/mocks"
	"github.com/xkilldash9x/autologin/internal/proton"
	"github.com/xkilldash9x/autologin/internal/store"
)

const mailboxURL = "https://mail.proton.me/u/0/inbox"

func newTestRunner(t *testing.T, cfg *config.Config, b Browser, rec RunRecorder) *Runner {
	t.Helper()
	r := NewRunner(cfg, b, rec, zaptest.NewLogger(t))
	r.In = strings.NewReader("")
	r.Out = &bytes.Buffer{}
	return r
}

func browserWith(tabs ...*mocks.MockPage) *MockBrowser {
	b := new(MockBrowser)
	for _, tab := range tabs {
		b.On("OpenTab", mock.Anything).Return(tab, nil).Once()
	}
	return b
}

func TestLoginAtoZ_AlreadyAuthenticated(t *testing.T) {
	cfg := newTestConfig(t)
	page := new(mocks.MockPage)
	page.On("LoadCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(true, nil).Once()
	page.On("Navigate", mock.Anything, atoz.LoginURL).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return("https://atoz.amazon.work/home", nil).Once()
	page.On("SaveCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(nil).Once()
	page.On("Close", mock.Anything).Return(nil).Once()

	rec := new(mocks.MockRunRecorder)
	rec.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	r := newTestRunner(t, cfg, browserWith(page), rec)
	result, err := r.LoginAtoZ(context.Background(), LoginOptions{SaveCookies: true})
	require.NoError(t, err)
	assert.Equal(t, atoz.ResultAlreadyAuthenticated, result)
	page.AssertExpectations(t)

	runs := rec.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, config.ServiceAtoZ, runs[0].Service)
	assert.Equal(t, store.OutcomeAlreadyAuthenticated, runs[0].Outcome)
	assert.Empty(t, runs[0].Error)
	assert.False(t, runs[0].FinishedAt.Before(runs[0].StartedAt))
}

func TestLoginAtoZ_VerificationWithPrompt(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AtoZ.CodeSource = config.CodeSourcePrompt

	page := new(mocks.MockPage)
	page.On("LoadCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(false, nil).Once()
	page.On("Navigate", mock.Anything, atoz.LoginURL).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return(atoz.LoginURL, nil).Once()
	page.On("PerformActionSet", mock.Anything, atoz.LoginOne, []string{"jdoe"}).Return(nil).Once()
	page.On("WaitForURL", mock.Anything, atoz.SSOURLPattern, time.Duration(0)).Return(nil).Once()
	page.On("PerformActionSet", mock.Anything, atoz.LoginTwo, []string{"hunter2"}).Return(nil).Once()
	page.On("WaitForURL", mock.Anything, atoz.PassportURLPattern, time.Duration(0)).Return(nil).Once()
	page.On("ClickWithin", mock.Anything, "//label[normalize-space()='jo*****@example.com']", "input").Return(nil).Once()
	page.On("Click", mock.Anything, `//*[@id="buttonContinue"]`).Return(nil).Once()
	page.On("PerformActionSet", mock.Anything, mock.Anything, []string{"123456"}).Return(nil).Once()
	page.On("SaveCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(nil).Once()
	page.On("Close", mock.Anything).Return(nil).Once()

	r := newTestRunner(t, cfg, browserWith(page), nil)
	out := &bytes.Buffer{}
	r.In = strings.NewReader("123456\n")
	r.Out = out

	result, err := r.LoginAtoZ(context.Background(), LoginOptions{SaveCookies: true})
	require.NoError(t, err)
	assert.Equal(t, atoz.ResultLoggedIn, result)
	assert.Contains(t, out.String(), "Enter login code: ")
	page.AssertExpectations(t)
}

func TestLoginAtoZ_WaitCloseKeepsTabOpen(t *testing.T) {
	cfg := newTestConfig(t)
	page := new(mocks.MockPage)
	page.On("LoadCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(true, nil).Once()
	page.On("Navigate", mock.Anything, atoz.LoginURL).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return("https://atoz.amazon.work/home", nil).Once()

	b := browserWith(page)
	b.On("WaitForClose", mock.Anything, time.Duration(0)).Return(nil).Once()

	r := newTestRunner(t, cfg, b, nil)
	_, err := r.LoginAtoZ(context.Background(), LoginOptions{WaitClose: true})
	require.NoError(t, err)
	b.AssertExpectations(t)
	page.AssertNotCalled(t, "Close", mock.Anything)
	page.AssertNotCalled(t, "SaveCookies", mock.Anything, mock.Anything)
}

func TestLoginAtoZ_FailureIsRecorded(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AtoZ.Password = ""
	page := new(mocks.MockPage)
	page.On("Close", mock.Anything).Return(nil).Once()

	rec := new(mocks.MockRunRecorder)
	// A failing recorder does not change the login result.
	rec.On("RecordRun", mock.Anything, mock.Anything).Return(errors.New("db down"))

	r := newTestRunner(t, cfg, browserWith(page), rec)
	result, err := r.LoginAtoZ(context.Background(), LoginOptions{})
	require.ErrorIs(t, err, atoz.ErrMissingCredentials)
	assert.Equal(t, atoz.ResultUnknown, result)

	runs := rec.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, store.OutcomeFailed, runs[0].Outcome)
	assert.Equal(t, atoz.ErrMissingCredentials.Error(), runs[0].Error)
	page.AssertExpectations(t)
}

func TestLoginAtoZ_OpenTabError(t *testing.T) {
	b := new(MockBrowser)
	b.On("OpenTab", mock.Anything).Return(nil, errors.New("browser closed")).Once()

	r := newTestRunner(t, newTestConfig(t), b, nil)
	_, err := r.LoginAtoZ(context.Background(), LoginOptions{})
	assert.ErrorContains(t, err, "failed to open atoz tab")
}

// expectPassport scripts an AtoZ login that reaches the verification step.
func expectPassport(page *mocks.MockPage, cfg *config.Config) {
	page.On("LoadCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(false, nil).Once()
	page.On("Navigate", mock.Anything, atoz.LoginURL).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return(atoz.LoginURL, nil).Once()
	page.On("PerformActionSet", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	page.On("WaitForURL", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	page.On("ClickWithin", mock.Anything, mock.Anything, "input").Return(nil).Once()
	page.On("Click", mock.Anything, mock.Anything).Return(nil).Once()
	page.On("Close", mock.Anything).Return(nil).Once()
}

func TestLoginAtoZ_ProtonCodeSourceLoginFailure(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AtoZ.CodeSource = config.CodeSourceProton

	atozPage := new(mocks.MockPage)
	expectPassport(atozPage, cfg)

	protonPage := new(mocks.MockPage)
	protonPage.On("LoadCookies", mock.Anything, cfg.Proton.CookiesFile).Return(false, nil).Once()
	protonPage.On("NavigateAndWait", mock.Anything, proton.SignInURL, "", []string(nil)).Return(nil).Once()
	protonPage.On("CurrentURL", mock.Anything).Return("https://account.proton.me/login", nil).Once()
	protonPage.On("Close", mock.Anything).Return(nil).Once()

	r := newTestRunner(t, cfg, browserWith(atozPage, protonPage), nil)
	_, err := r.LoginAtoZ(context.Background(), LoginOptions{})
	require.ErrorIs(t, err, proton.ErrMissingCredentials)
	assert.ErrorContains(t, err, "obtain verification code")

	atozPage.AssertExpectations(t)
	protonPage.AssertExpectations(t)
}

func TestLoginAtoZ_GmailCodeSourceWithoutCredentials(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AtoZ.CodeSource = config.CodeSourceGmail

	page := new(mocks.MockPage)
	expectPassport(page, cfg)

	r := newTestRunner(t, cfg, browserWith(page), nil)
	_, err := r.LoginAtoZ(context.Background(), LoginOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to authenticate with gmail")
	page.AssertExpectations(t)
}

func TestLoginProton(t *testing.T) {
	cfg := newTestConfig(t)
	page := new(mocks.MockPage)
	page.On("LoadCookies", mock.Anything, cfg.Proton.CookiesFile).Return(true, nil).Once()
	page.On("NavigateAndWait", mock.Anything, proton.SignInURL, "", []string(nil)).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return(mailboxURL, nil).Once()
	page.On("Close", mock.Anything).Return(nil).Once()

	rec := new(mocks.MockRunRecorder)
	rec.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	r := newTestRunner(t, cfg, browserWith(page), rec)
	require.NoError(t, r.LoginProton(context.Background()))
	page.AssertExpectations(t)

	runs := rec.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, config.ServiceProton, runs[0].Service)
	assert.Equal(t, store.OutcomeLoggedIn, runs[0].Outcome)
}

func TestLogin_UnknownService(t *testing.T) {
	r := newTestRunner(t, newTestConfig(t), new(MockBrowser), nil)
	assert.ErrorIs(t, r.Login(context.Background(), "outlook"), ErrUnknownService)
}

func TestJob_LogsIntoEveryService(t *testing.T) {
	cfg := newTestConfig(t)
	// Tabs are handed out in whatever order the goroutines ask, so one page
	// serves both services. The mailbox URL counts as logged in for both.
	page := new(mocks.MockPage)
	page.On("LoadCookies", mock.Anything, mock.Anything).Return(true, nil)
	page.On("Navigate", mock.Anything, atoz.LoginURL).Return(nil).Once()
	page.On("NavigateAndWait", mock.Anything, proton.SignInURL, "", []string(nil)).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return(mailboxURL, nil)
	page.On("SaveCookies", mock.Anything, cfg.AtoZ.CookiesFile).Return(nil).Once()
	page.On("Close", mock.Anything).Return(nil).Twice()

	b := new(MockBrowser)
	b.On("OpenTab", mock.Anything).Return(page, nil).Twice()

	rec := new(mocks.MockRunRecorder)
	rec.On("RecordRun", mock.Anything, mock.Anything).Return(nil)

	r := newTestRunner(t, cfg, b, rec)
	job := r.Job([]string{config.ServiceAtoZ, config.ServiceProton})
	require.NoError(t, job(context.Background()))

	services := map[string]store.Outcome{}
	for _, run := range rec.Runs() {
		services[run.Service] = run.Outcome
	}
	assert.Equal(t, map[string]store.Outcome{
		config.ServiceAtoZ:   store.OutcomeAlreadyAuthenticated,
		config.ServiceProton: store.OutcomeLoggedIn,
	}, services)
	page.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestJob_JoinsFailures(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.AtoZ.Username = ""
	page := new(mocks.MockPage)
	page.On("Close", mock.Anything).Return(nil).Once()

	r := newTestRunner(t, cfg, browserWith(page), nil)
	err := r.Job([]string{config.ServiceAtoZ, "outlook"})(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, atoz.ErrMissingCredentials)
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.Contains(t, err.Error(), "atoz: ")
}
