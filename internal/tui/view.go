package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/autologin/internal/schedule"
)

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Autologin Scheduler") + "  " + m.stateLine() + "\n\n")

	b.WriteString(labelStyle.Render("Time to Start: ") + m.timeInput.View() + "   ")
	b.WriteString(labelStyle.Render("Hours to Run: ") + m.hoursInput.View() + "\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.button("Delayed Start", focusDelayed, m.delayedStartEnabled()),
		m.button("Run now", focusRunNow, m.idle()),
		m.button("Stop", focusStop, !m.idle()),
	) + "\n")

	title := "Rules"
	if m.dirty {
		title += " (unsaved)"
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(m.rulesView() + "\n")

	if m.editor != nil {
		b.WriteString(m.editor.view() + "\n")
	} else {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			m.button("Add Date Rule", focusAddDate, true),
			m.button("Add Day Rule", focusAddDay, true),
			m.button("Save", focusSave, true),
		) + "\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(helpStyle.Render("tab/shift+tab move • enter select • e edit • d delete • ctrl+c quit"))
	return b.String()
}

func (m *Model) stateLine() string {
	state := m.sched.State()
	line := "state: " + state.String()
	if state == schedule.StateWaiting {
		if at, ok := m.sched.NextWake(); ok {
			line += " until " + at.Format("Mon 15:04")
		}
	}
	return stateStyle.Render(line)
}

func (m *Model) button(label string, f focusItem, enabled bool) string {
	switch {
	case !enabled:
		return disabledButtonStyle.Render(label)
	case m.focus == f:
		return focusedButtonStyle.Render(label)
	default:
		return buttonStyle.Render(label)
	}
}

func (m *Model) rulesView() string {
	if m.ruleCount() == 0 {
		return statusStyle.Render("  No rules: runs are allowed at any time.")
	}

	lines := make([]string, 0, m.ruleCount())
	pos := 0
	for _, r := range m.draft.DateRules {
		lines = append(lines, m.ruleLine(pos, "Date", r.Date, r.StartTime, r.EndTime))
		pos++
	}
	for _, r := range m.draft.DayRules {
		lines = append(lines, m.ruleLine(pos, "Day", r.Day, r.StartTime, r.EndTime))
		pos++
	}
	return strings.Join(lines, "\n")
}

func (m *Model) ruleLine(pos int, kind, keyValue, start, end string) string {
	line := fmt.Sprintf("%-4s %-10s %s-%s", kind, keyValue, start, end)
	if m.focus == focusRules && pos == m.cursor {
		return selectedRuleStyle.Render("> " + line)
	}
	return "  " + line
}
