// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autologin/internal/browser"
	"github.com/xkilldash9x/autologin/internal/store"
)

// -- Page Mock --

// MockPage mocks a browser tab as seen by the login clients.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) LoadCookies(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}
func (m *MockPage) SaveCookies(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}
func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockPage) NavigateAndWait(ctx context.Context, url, urlPattern string, elements ...string) error {
	return m.Called(ctx, url, urlPattern, elements).Error(0)
}
func (m *MockPage) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockPage) PerformActionSet(ctx context.Context, set browser.ActionSet, values ...string) error {
	return m.Called(ctx, set, values).Error(0)
}
func (m *MockPage) WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error {
	return m.Called(ctx, pattern, timeout).Error(0)
}
func (m *MockPage) WaitForElement(ctx context.Context, xpath string, timeout time.Duration) error {
	return m.Called(ctx, xpath, timeout).Error(0)
}
func (m *MockPage) Click(ctx context.Context, xpath string) error {
	return m.Called(ctx, xpath).Error(0)
}
func (m *MockPage) ClickWithin(ctx context.Context, parentXPath, childQuery string) error {
	return m.Called(ctx, parentXPath, childQuery).Error(0)
}
func (m *MockPage) AttributeValues(ctx context.Context, xpath, attr string) ([]string, error) {
	args := m.Called(ctx, xpath, attr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockPage) FrameText(ctx context.Context, iframeXPath, query string) (string, error) {
	args := m.Called(ctx, iframeXPath, query)
	return args.String(0), args.Error(1)
}
func (m *MockPage) Back(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Code Provider Mock --

// MockCodeProvider mocks a verification code source.
type MockCodeProvider struct {
	mock.Mock
}

func (m *MockCodeProvider) Code(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// -- Run Recorder Mock --

// MockRunRecorder collects recorded runs. Calls go through mock.Mock so tests
// can inject errors, and the runs are also kept for inspection.
type MockRunRecorder struct {
	mock.Mock
	mu   sync.Mutex
	runs []store.Run
}

func (m *MockRunRecorder) RecordRun(ctx context.Context, run store.Run) error {
	m.mu.Lock()
	m.runs = append(m.runs, run)
	m.mu.Unlock()
	return m.Called(ctx, run).Error(0)
}

// Runs returns a copy of the recorded runs.
func (m *MockRunRecorder) Runs() []store.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Run(nil), m.runs...)
}
