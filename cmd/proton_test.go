// File: cmd/proton_test.go
package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autologin/internal/browser"
	"github.com/xkilldash9x/autologin/internal/mocks"
	"github.com/xkilldash9x/autologin/internal/proton"
)

const mailbox = "https://mail.proton.me/u/3/inbox"

// signedInPage is a tab whose saved cookies land in mailbox 3.
func signedInPage(cookiesFile string) *mocks.MockPage {
	page := new(mocks.MockPage)
	page.On("LoadCookies", mock.Anything, cookiesFile).Return(true, nil).Once()
	page.On("NavigateAndWait", mock.Anything, proton.SignInURL, "", []string(nil)).Return(nil).Once()
	page.On("CurrentURL", mock.Anything).Return(mailbox, nil).Once()
	page.On("Close", mock.Anything).Return(nil).Once()
	return page
}

func TestProtonLogin(t *testing.T) {
	env := newTestEnv(t, "")
	page := signedInPage(env.path("proton_cookies.json"))

	factory := newFakeFactory()
	factory.browser.On("OpenTab", mock.Anything).Return(page, nil).Once()

	stdout, _, err := runWithEnv(t, env, newTestApp(factory), "proton", "login")
	require.NoError(t, err)
	assert.Equal(t, "proton: logged_in\n", stdout)
	page.AssertExpectations(t)
}

func TestProtonLogin_OpenTabFails(t *testing.T) {
	env := newTestEnv(t, "")
	factory := newFakeFactory()
	factory.browser.On("OpenTab", mock.Anything).Return(nil, errors.New("target crashed")).Once()

	_, _, err := runWithEnv(t, env, newTestApp(factory), "proton", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target crashed")
	factory.browser.AssertCalled(t, "Shutdown", mock.Anything)
}

func TestProtonSearch_EmptyResult(t *testing.T) {
	env := newTestEnv(t, "")
	page := signedInPage(env.path("proton_cookies.json"))
	page.On("NavigateAndWait", mock.Anything, proton.Query{From: "no-reply@amazon.com"}.URL("3"), proton.LoggedInPattern, []string(nil)).
		Return(nil).Once()
	page.On("WaitForElement", mock.Anything, "//*[@data-element-id]", mock.Anything).
		Return(browser.ErrElementTimeout).Once()

	factory := newFakeFactory()
	factory.browser.On("OpenTab", mock.Anything).Return(page, nil).Once()

	stdout, stderr, err := runWithEnv(t, env, newTestApp(factory),
		"proton", "search", "--from", "no-reply@amazon.com", "--since", "0")
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No messages found.")
	page.AssertExpectations(t)
}

func TestProtonRead(t *testing.T) {
	env := newTestEnv(t, "")
	page := signedInPage(env.path("proton_cookies.json"))
	iframe := "//*[@data-testid='content-iframe']"
	page.On("NavigateAndWait", mock.Anything, mailbox+"/abc123==", proton.LoggedInPattern, []string{iframe}).Return(nil).Once()
	page.On("FrameText", mock.Anything, iframe, "#proton-root").Return("\n  Your code is 123456\n", nil).Once()

	factory := newFakeFactory()
	factory.browser.On("OpenTab", mock.Anything).Return(page, nil).Once()

	stdout, _, err := runWithEnv(t, env, newTestApp(factory), "proton", "read", "abc123==")
	require.NoError(t, err)
	assert.Equal(t, "Your code is 123456\n", stdout)
	page.AssertExpectations(t)
}

func TestProtonRead_RequiresID(t *testing.T) {
	env := newTestEnv(t, "")
	factory := newFakeFactory()
	_, _, err := runWithEnv(t, env, newTestApp(factory), "proton", "read")
	require.Error(t, err)
	assert.Zero(t, factory.created)
}

func TestGmailAuth_MissingCredentials(t *testing.T) {
	env := newTestEnv(t, "")
	factory := newFakeFactory()

	_, _, err := runWithEnv(t, env, newTestApp(factory), "gmail", "auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to authenticate with gmail")
	assert.Zero(t, factory.created, "gmail needs no browser")
}

func TestGmailSearch_MissingCredentials(t *testing.T) {
	env := newTestEnv(t, "")
	_, _, err := runWithEnv(t, env, newTestApp(newFakeFactory()), "gmail", "search", "--from", "no-reply@amazon.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to authenticate with gmail")
}
