package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
	"github.com/shopspring/decimal"
)

const cellWidth = 9

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.renderHeader() + "\n" + m.viewport.View() + "\n" + footerStyle.Render(m.help.View(m.keys))
}

func (m Model) renderHeader() string {
	parts := []string{" optionscope"}
	if t := m.snap.LoadedTicker(); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, m.snap.State.String(), m.snap.Model().DisplayName())
	if m.isLoading() {
		parts = append(parts, m.spinner.View()+" loading")
	}
	return headerStyle.Render(padOrTrunc(strings.Join(parts, "  ")+" ", m.width))
}

func (m Model) renderBody() string {
	var b strings.Builder

	b.WriteString(m.input.View())
	b.WriteString("\n")
	if text := m.errorText(); text != "" {
		b.WriteString(errorStyle.Render(" ! " + text + " "))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderContracts())
	b.WriteString("\n")
	b.WriteString(m.renderModels())
	b.WriteString("\n\n")
	b.WriteString(m.renderHeatmap())
	return b.String()
}

func (m Model) title(p panel, text string) string {
	if m.focus == p {
		return activeTitleStyle.Render("▸ " + text)
	}
	return panelTitleStyle.Render("  " + text)
}

func (m Model) renderContracts() string {
	var b strings.Builder
	cat := m.snap.Catalog

	heading := "Contracts"
	if cat != nil {
		heading = fmt.Sprintf("Contracts for %s (%d, fetched %s)", cat.Ticker(), cat.Len(), cat.FetchedAt().Format("15:04:05"))
	}
	b.WriteString(m.title(panelContracts, heading))
	b.WriteString("\n")

	switch {
	case cat == nil:
		b.WriteString(dimStyle.Render("    Enter a ticker and press enter to load its option chain."))
		b.WriteString("\n")
		return b.String()
	case cat.Len() == 0:
		b.WriteString(dimStyle.Render("    No options found for " + cat.Ticker() + "."))
		b.WriteString("\n")
		return b.String()
	}

	today := models.DateOf(m.now())
	selected, hasSelection := m.snap.Selection.Index()
	for group := range cat.GroupByExpiry() {
		b.WriteString(expiryStyle.Render(fmt.Sprintf("    %s  (%d days)", group.Expiry, today.DaysUntil(group.Expiry))))
		b.WriteString("\n")
		for _, entry := range group.Entries {
			cursor := "  "
			if m.focus == panelContracts && entry.Index == m.cursor {
				cursor = cursorStyle.Render("› ")
			}
			marker := "○ "
			line := entry.Contract.Label()
			if hasSelection && entry.Index == selected {
				marker = "● "
				line = selectedStyle.Render(line)
			}
			b.WriteString("      " + cursor + marker + line + "\n")
		}
	}
	return b.String()
}

func (m Model) renderModels() string {
	items := make([]string, 0, 3)
	current := m.snap.Model()
	for i, model := range models.AllPricingModels() {
		label := fmt.Sprintf("%d %s", i+1, model.DisplayName())
		switch {
		case model == current:
			label = selectedStyle.Render("[" + label + "]")
		case m.focus == panelModels && i == m.modelCursor:
			label = cursorStyle.Render(" " + label + " ")
		default:
			label = dimStyle.Render(" " + label + " ")
		}
		items = append(items, label)
	}
	return m.title(panelModels, "Model") + "  " + strings.Join(items, " ")
}

func (m Model) renderHeatmap() string {
	h := m.snap.Heatmap
	if h == nil {
		switch {
		case m.loading[orchestrator.ActionLoadHeatmap] > 0:
			return dimStyle.Render("    Pricing the selected contract...")
		case m.snap.Selection.HasSelection():
			return dimStyle.Render("    Press enter on a contract to load its heatmap.")
		default:
			return dimStyle.Render("    Select a contract to see its P/L heatmap.")
		}
	}

	var b strings.Builder
	contract, _ := m.snap.SelectedContract()
	b.WriteString(panelTitleStyle.Render(fmt.Sprintf("  P/L heatmap: %s %s (%s)", m.snap.LoadedTicker(), contract.Label(), m.snap.Model().DisplayName())))
	b.WriteString("\n")
	b.WriteString(RenderHeatmap(h))
	return b.String()
}

// RenderHeatmap draws the P/L grid followed by the metrics panel.
func RenderHeatmap(h *models.HeatmapResult) string {
	return renderGrid(h) + "\n" + renderMetrics(h.Metrics)
}

// renderGrid draws Z with the highest price row on top and days to expiry
// across.
func renderGrid(h *models.HeatmapResult) string {
	var b strings.Builder
	lo, hi := h.Range()

	b.WriteString(axisStyle.Render(fmt.Sprintf("%*s", cellWidth, "price\\days")))
	for _, x := range h.X {
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s", cellWidth, x.String())))
	}
	b.WriteString("\n")

	for row := len(h.Y) - 1; row >= 0; row-- {
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s", cellWidth, yLabel(h.Y[row]))))
		for _, v := range h.Z[row] {
			cell := lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(cellColor(v, lo, hi)).
				Render(fmt.Sprintf("%*.2f", cellWidth, v))
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}

	b.WriteString("  P/L range: ")
	b.WriteString(lossStyle.Render(fmt.Sprintf("%.2f", lo)))
	b.WriteString(" .. ")
	b.WriteString(gainStyle.Render(fmt.Sprintf("%.2f", hi)))
	b.WriteString("\n")
	return b.String()
}

func yLabel(a models.AxisLabel) string {
	if a.IsNumeric() {
		return fmt.Sprintf("%.2f", a.Number)
	}
	return a.Text
}

func renderMetrics(mt models.Metrics) string {
	rows := [][2]string{
		{"Probability of profit", mt.ProbabilityProfit.StringFixed(2) + "%"},
		{"Max risk", money(mt.MaxRisk)},
		{"Max return", maxReturn(mt.MaxReturn)},
		{"Breakeven price", money(mt.BreakevenPrice)},
	}
	optional := []struct {
		label string
		value decimal.NullDecimal
	}{
		{"Current price", mt.CurrentPrice},
		{"Strike", mt.Strike},
		{"Premium", mt.Premium},
		{"Entry cost", mt.EntryCost},
	}
	for _, o := range optional {
		if o.value.Valid {
			rows = append(rows, [2]string{o.label, money(o.value.Decimal)})
		}
	}

	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("  Metrics"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("    %-22s %s\n", r[0], r[1]))
	}

	if mt.HasGreeks() {
		b.WriteString(panelTitleStyle.Render("  Greeks"))
		b.WriteString("\n")
		for _, g := range mt.Greeks() {
			b.WriteString(fmt.Sprintf("    %-22s %s\n", g.Name, g.Value.Decimal.StringFixed(4)))
		}
	}
	return b.String()
}

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func maxReturn(r models.MaxReturn) string {
	if r.Unlimited {
		return gainStyle.Render(models.UnlimitedLiteral)
	}
	return money(r.Value)
}

// padOrTrunc fits s into width cells. A zero width leaves s unchanged.
func padOrTrunc(s string, width int) string {
	if width <= 0 {
		return s
	}
	w := lipgloss.Width(s)
	if w > width {
		runes := []rune(s)
		if len(runes) > width {
			return string(runes[:width])
		}
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
