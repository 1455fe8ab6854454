package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/macrocam/internal/capture"
	"github.com/felixgeelhaar/macrocam/internal/meal"
	"github.com/felixgeelhaar/macrocam/internal/session"
	"github.com/felixgeelhaar/macrocam/internal/view"
)

// View renders the TUI (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.controller.Screen() {
	case view.ScreenCapture:
		return m.renderCapture()
	default:
		return m.renderAuth()
	}
}

func (m Model) renderAuth() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("🍽  MacroCam"))
	b.WriteString("\n")

	if m.signingIn {
		b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("Signing in..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.form.View())
		b.WriteString("\n")
	}

	b.WriteString(m.renderMessage())
	b.WriteString(m.styles.Muted.Render("enter: next field • ctrl+c: quit"))
	return b.String()
}

func (m Model) renderCapture() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("🍽  MacroCam"))
	b.WriteString("\n")

	if st, ok := m.controller.State().(session.Authenticated); ok && st.Session.Email != "" {
		b.WriteString(m.styles.Muted.Render("Signed in as " + st.Session.Email))
		b.WriteString("\n\n")
	}

	snap := m.capture.Snapshot()

	b.WriteString(m.pathInput.View())
	b.WriteString("\n")
	b.WriteString(m.renderCaptureStatus(snap))
	b.WriteString("\n\n")

	cards := []string{m.renderTotals(m.controller.Totals())}
	if snap.Last != nil {
		cards = append([]string{m.renderEstimate(*snap.Last)}, cards...)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n")

	b.WriteString(m.renderMessage())
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderCaptureStatus(snap capture.Snapshot) string {
	switch snap.State {
	case capture.Analyzing:
		return m.spinner.View() + " " + m.styles.Muted.Render("Analyzing "+snap.ImageName+"...")
	case capture.Persisting:
		return m.spinner.View() + " " + m.styles.Muted.Render("Saving...")
	case capture.Settled:
		return m.styles.Success.Render("✓ Saved")
	case capture.Ready:
		return m.styles.Muted.Render("Ready: " + snap.ImageName)
	default:
		return m.styles.Muted.Render("Choose a meal photo and press enter")
	}
}

// renderMessage renders the single message slot, or nothing when it is empty
func (m Model) renderMessage() string {
	msg := m.controller.Message()
	if msg == "" {
		return ""
	}
	return m.styles.Error.Render("✗ "+msg) + "\n\n"
}

func (m Model) renderEstimate(est meal.MacroEstimate) string {
	return m.renderCard("Last meal", est.Calories, est.ProteinG, est.CarbsG, est.FatG)
}

func (m Model) renderTotals(t meal.DailyTotals) string {
	return m.renderCard("Today", t.Calories, t.Protein, t.Carbs, t.Fat)
}

func (m Model) renderCard(title string, calories, protein, carbs, fat float64) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(m.renderRow("Calories", formatAmount(calories, "kcal")))
	b.WriteString(m.renderRow("Protein", formatAmount(protein, "g")))
	b.WriteString(m.renderRow("Carbs", formatAmount(carbs, "g")))
	b.WriteString(strings.TrimSuffix(m.renderRow("Fat", formatAmount(fat, "g")), "\n"))

	return m.styles.Card.Render(b.String())
}

func (m Model) renderRow(label, value string) string {
	return m.styles.Label.Render(label) + m.styles.Value.Render(value) + "\n"
}

// formatAmount drops the fraction for whole values
func formatAmount(v float64, unit string) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d %s", int64(v), unit)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}
