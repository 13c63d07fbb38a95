// Package tui is the terminal scheduler panel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xkilldash9x/autologin/internal/schedule"
)

// Scheduler is the part of the scheduler the panel drives.
type Scheduler interface {
	State() schedule.State
	NextWake() (time.Time, bool)
	RunNow() error
	DelayedStart(now time.Time) error
	Stop()
}

// Rules holds the live settings the scheduler reads.
type Rules interface {
	Settings() schedule.Settings
	Set(s schedule.Settings)
}

type focusItem int

const (
	focusTime focusItem = iota
	focusHours
	focusDelayed
	focusRunNow
	focusStop
	focusRules
	focusAddDate
	focusAddDay
	focusSave
	focusCount
)

type keyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Edit   key.Binding
	Delete key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Next:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next")),
		Prev:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous")),
		Up:     key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		Down:   key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "down")),
		Enter:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "select")),
		Edit:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit rule")),
		Delete: key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete rule")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// tickMsg refreshes the scheduler state line.
type tickMsg time.Time

// rulesMsg carries settings reloaded from disk.
type rulesMsg schedule.Settings

// Model is the scheduler panel.
type Model struct {
	sched   Scheduler
	rules   Rules
	path    string
	updates <-chan schedule.Settings
	save    func(path string, s schedule.Settings) error
	now     func() time.Time
	keys    keyMap

	draft      schedule.Settings
	focus      focusItem
	timeInput  textinput.Model
	hoursInput textinput.Model
	cursor     int
	editor     *ruleEditor
	dirty      bool

	status string
	err    error
	width  int
}

// New creates the panel. Settings arriving on updates replace the displayed rules.
func New(sched Scheduler, rules Rules, path string, updates <-chan schedule.Settings) *Model {
	m := &Model{
		sched:   sched,
		rules:   rules,
		path:    path,
		updates: updates,
		save:    schedule.SaveFile,
		now:     time.Now,
		keys:    defaultKeyMap(),
	}

	m.timeInput = textinput.New()
	m.timeInput.Placeholder = "HH:MM"
	m.timeInput.CharLimit = 5
	m.timeInput.Width = 6

	m.hoursInput = textinput.New()
	m.hoursInput.Placeholder = "0"
	m.hoursInput.CharLimit = 3
	m.hoursInput.Width = 4

	m.load(rules.Settings())
	m.setFocus(focusTime)
	return m
}

// Run shows the panel until the user quits or ctx ends.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI program: %w", err)
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick(), waitForRules(m.updates))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForRules(updates <-chan schedule.Settings) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return rulesMsg(s)
	}
}

// load replaces the draft and the inputs with s.
func (m *Model) load(s schedule.Settings) {
	m.draft = s.Clone()
	m.timeInput.SetValue(s.TimeToStart)
	m.hoursInput.SetValue(strconv.Itoa(s.HoursToRun))
	m.dirty = false
	m.clampCursor()
}

func (m *Model) ruleCount() int {
	return len(m.draft.DateRules) + len(m.draft.DayRules)
}

func (m *Model) clampCursor() {
	if n := m.ruleCount(); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setFocus(f focusItem) {
	m.focus = (f + focusCount) % focusCount
	m.timeInput.Blur()
	m.hoursInput.Blur()
	switch m.focus {
	case focusTime:
		m.timeInput.Focus()
	case focusHours:
		m.hoursInput.Focus()
	}
}

func (m *Model) idle() bool {
	return m.sched.State() == schedule.StateIdle
}

// delayedStartEnabled requires an idle scheduler and a valid HH:MM start time.
func (m *Model) delayedStartEnabled() bool {
	return m.idle() && schedule.ValidClock(m.timeInput.Value())
}

// commitInputs copies the text inputs into the draft.
func (m *Model) commitInputs() error {
	hours := 0
	if v := m.hoursInput.Value(); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("hours to run must be a whole number of hours, got %q", v)
		}
		hours = n
	}
	if m.draft.TimeToStart != m.timeInput.Value() || m.draft.HoursToRun != hours {
		m.dirty = true
	}
	m.draft.TimeToStart = m.timeInput.Value()
	m.draft.HoursToRun = hours
	return nil
}
