package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xkilldash9x/autologin/internal/schedule"
)

type ruleKind int

const (
	dayRule ruleKind = iota
	dateRule
)

func (k ruleKind) String() string {
	if k == dateRule {
		return "Date"
	}
	return "Day"
}

const (
	fieldKey = iota
	fieldStart
	fieldEnd
	fieldCount
)

// ruleEditor edits one day or date rule.
type ruleEditor struct {
	kind ruleKind
	// index is the position in DayRules or DateRules, -1 for a new rule.
	index  int
	inputs [fieldCount]textinput.Model
	focus  int
	err    error
}

func newRuleEditor(kind ruleKind, index int, keyValue, start, end string) *ruleEditor {
	e := &ruleEditor{kind: kind, index: index}
	placeholders := [fieldCount]string{"Monday", "HH:MM", "HH:MM"}
	if kind == dateRule {
		placeholders[fieldKey] = "YYYY-MM-DD"
	}
	values := [fieldCount]string{keyValue, start, end}
	for i := range e.inputs {
		in := textinput.New()
		in.Placeholder = placeholders[i]
		in.CharLimit = 10
		in.Width = 11
		in.SetValue(values[i])
		e.inputs[i] = in
	}
	e.inputs[fieldKey].Focus()
	return e
}

func (e *ruleEditor) move(delta int) {
	e.inputs[e.focus].Blur()
	e.focus = (e.focus + delta + fieldCount) % fieldCount
	e.inputs[e.focus].Focus()
}

func (e *ruleEditor) value(field int) string {
	return strings.TrimSpace(e.inputs[field].Value())
}

// validate checks the edited rule on its own.
func (e *ruleEditor) validate() error {
	var s schedule.Settings
	if e.kind == dateRule {
		s.AddDateRule(e.dateRule())
	} else {
		s.AddDayRule(e.dayRule())
	}
	return s.Validate()
}

func (e *ruleEditor) dayRule() schedule.DayRule {
	return schedule.DayRule{Day: e.value(fieldKey), StartTime: e.value(fieldStart), EndTime: e.value(fieldEnd)}
}

func (e *ruleEditor) dateRule() schedule.DateRule {
	return schedule.DateRule{Date: e.value(fieldKey), StartTime: e.value(fieldStart), EndTime: e.value(fieldEnd)}
}

// openEditor starts editing the rule at list position pos.
func (m *Model) openEditor(pos int) {
	if pos < 0 || pos >= m.ruleCount() {
		return
	}
	if pos < len(m.draft.DateRules) {
		r := m.draft.DateRules[pos]
		m.editor = newRuleEditor(dateRule, pos, r.Date, r.StartTime, r.EndTime)
		return
	}
	i := pos - len(m.draft.DateRules)
	r := m.draft.DayRules[i]
	m.editor = newRuleEditor(dayRule, i, r.Day, r.StartTime, r.EndTime)
}

func (m *Model) openNewRule(kind ruleKind) {
	today := m.now()
	keyValue := today.Weekday().String()
	if kind == dateRule {
		keyValue = today.Format("2006-01-02")
	}
	m.editor = newRuleEditor(kind, -1, keyValue, "08:00", "17:00")
}

func (m *Model) updateEditor(msg tea.KeyMsg) tea.Cmd {
	e := m.editor
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.editor = nil
		m.status = "Edit canceled."
		return nil
	case key.Matches(msg, m.keys.Next), key.Matches(msg, m.keys.Down):
		e.move(1)
		return nil
	case key.Matches(msg, m.keys.Prev), key.Matches(msg, m.keys.Up):
		e.move(-1)
		return nil
	case msg.Type == tea.KeyEnter:
		m.commitEditor()
		return nil
	}

	var cmd tea.Cmd
	e.inputs[e.focus], cmd = e.inputs[e.focus].Update(msg)
	return cmd
}

// commitEditor writes a valid rule into the draft and closes the editor.
func (m *Model) commitEditor() {
	e := m.editor
	if err := e.validate(); err != nil {
		e.err = err
		return
	}

	switch e.kind {
	case dateRule:
		if e.index < 0 {
			m.draft.AddDateRule(e.dateRule())
			m.cursor = len(m.draft.DateRules) - 1
		} else {
			m.draft.DateRules[e.index] = e.dateRule()
		}
	case dayRule:
		if e.index < 0 {
			m.draft.AddDayRule(e.dayRule())
			m.cursor = m.ruleCount() - 1
		} else {
			m.draft.DayRules[e.index] = e.dayRule()
		}
	}
	m.dirty = true
	m.editor = nil
	m.status = fmt.Sprintf("%s rule updated. Save to keep it.", e.kind)
}

// deleteRule removes the rule at list position pos.
func (m *Model) deleteRule(pos int) {
	var removed bool
	if pos < len(m.draft.DateRules) {
		removed = m.draft.RemoveDateRule(pos)
	} else {
		removed = m.draft.RemoveDayRule(pos - len(m.draft.DateRules))
	}
	if !removed {
		return
	}
	m.dirty = true
	m.clampCursor()
	m.status = "Rule deleted. Save to keep it."
}

func (e *ruleEditor) view() string {
	var b strings.Builder
	title := "Edit " + e.kind.String() + " Rule"
	if e.index < 0 {
		title = "Add " + e.kind.String() + " Rule"
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	labels := [fieldCount]string{e.kind.String(), "Start", "End"}
	for i, in := range e.inputs {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-6s", labels[i]+":")), in.View())
	}
	if e.err != nil {
		b.WriteString(errorStyle.Render(e.err.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render("enter save rule • tab next field • esc cancel"))
	return editorStyle.Render(b.String())
}
