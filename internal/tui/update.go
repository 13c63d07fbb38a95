package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/xkilldash9x/autologin/internal/schedule"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tick()

	case rulesMsg:
		m.applyReload(schedule.Settings(msg))
		return m, waitForRules(m.updates)

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.editor != nil {
			return m, m.updateEditor(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, nil
}

// applyReload shows settings that changed outside the panel.
func (m *Model) applyReload(s schedule.Settings) {
	if cmp.Equal(s, m.draft, cmpopts.EquateEmpty()) {
		return
	}
	m.load(s)
	m.editor = nil
	m.status = "Rules reloaded from disk."
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Next):
		m.setFocus(m.focus + 1)
		return nil
	case key.Matches(msg, m.keys.Prev):
		m.setFocus(m.focus - 1)
		return nil
	}

	switch m.focus {
	case focusTime, focusHours:
		return m.handleInputKey(msg)
	case focusRules:
		m.handleRulesKey(msg)
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		m.setFocus(m.focus - 1)
	case key.Matches(msg, m.keys.Down):
		m.setFocus(m.focus + 1)
	case key.Matches(msg, m.keys.Enter):
		m.activate(m.focus)
	}
	return nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case msg.Type == tea.KeyEnter, key.Matches(msg, m.keys.Down):
		m.setFocus(m.focus + 1)
		return nil
	case key.Matches(msg, m.keys.Up):
		m.setFocus(m.focus - 1)
		return nil
	}

	var cmd tea.Cmd
	if m.focus == focusTime {
		m.timeInput, cmd = m.timeInput.Update(msg)
	} else {
		m.hoursInput, cmd = m.hoursInput.Update(msg)
	}
	return cmd
}

func (m *Model) handleRulesKey(msg tea.KeyMsg) {
	n := m.ruleCount()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		} else {
			m.setFocus(m.focus - 1)
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < n-1 {
			m.cursor++
		} else {
			m.setFocus(m.focus + 1)
		}
	case key.Matches(msg, m.keys.Edit), key.Matches(msg, m.keys.Enter):
		m.openEditor(m.cursor)
	case key.Matches(msg, m.keys.Delete):
		m.deleteRule(m.cursor)
	}
}

// activate presses the button at f. Disabled buttons only explain why.
func (m *Model) activate(f focusItem) {
	m.err = nil
	switch f {
	case focusDelayed:
		m.delayedStart()
	case focusRunNow:
		m.runNow()
	case focusStop:
		if m.idle() {
			m.status = "Nothing is running."
			return
		}
		m.sched.Stop()
		m.status = "Stopped."
	case focusAddDate:
		m.openNewRule(dateRule)
	case focusAddDay:
		m.openNewRule(dayRule)
	case focusSave:
		m.saveRules()
	}
}

// publish hands the draft to the scheduler without writing the file.
func (m *Model) publish() bool {
	if err := m.commitInputs(); err != nil {
		m.err = err
		return false
	}
	if err := m.draft.Validate(); err != nil {
		m.err = err
		return false
	}
	m.rules.Set(m.draft.Clone())
	return true
}

func (m *Model) delayedStart() {
	if !m.idle() {
		m.status = "A run is already active."
		return
	}
	if !m.delayedStartEnabled() {
		m.status = "Delayed start needs a time to start as HH:MM."
		return
	}
	if !m.publish() {
		return
	}
	if err := m.sched.DelayedStart(m.now()); err != nil {
		m.err = err
		return
	}
	if at, ok := m.sched.NextWake(); ok {
		m.status = fmt.Sprintf("Waiting until %s.", at.Format("Mon 15:04"))
	}
}

func (m *Model) runNow() {
	if !m.idle() {
		m.status = "A run is already active."
		return
	}
	if !m.publish() {
		return
	}
	if err := m.sched.RunNow(); err != nil {
		m.err = err
		return
	}
	m.status = "Running."
}

func (m *Model) saveRules() {
	if err := m.commitInputs(); err != nil {
		m.err = err
		return
	}
	if err := m.save(m.path, m.draft); err != nil {
		m.err = err
		return
	}
	m.rules.Set(m.draft.Clone())
	m.dirty = false
	m.status = "Saved to " + m.path + "."
}
