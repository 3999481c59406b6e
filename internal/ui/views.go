package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmynk/tabsplit/internal/calculator"
	"github.com/mmynk/tabsplit/internal/models"
	"github.com/mmynk/tabsplit/internal/session"
)

var stepTitles = map[session.Step]string{
	session.StepLanding:        "New bill",
	session.StepLoading:        "Reading receipt",
	session.StepReviewing:      "Review products",
	session.StepAssigning:      "Assign items",
	session.StepLoadingSession: "Opening shared bill",
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m *Model) View() string {
	header := m.renderHeader()
	statusBar := m.renderStatusBar()

	contentH := m.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = modalStyle.Render(m.renderHelp())
	case m.palette.Visible():
		content = m.palette.View(m.state.Step)
	case m.state.Notice != "":
		content = modalStyle.BorderForeground(colorRed).Render(
			errStyle.Render(m.state.Notice) + "\n\n" + mutedStyle.Render("esc to dismiss"))
	default:
		content = m.renderStep()
	}
	if m.width > 0 {
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Top, content)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

func (m *Model) renderStep() string {
	switch m.state.Step {
	case session.StepLanding:
		return m.renderLanding()
	case session.StepLoading:
		return paneStyle.Render(m.spinner.View() + " reading the receipt, this can take a minute")
	case session.StepLoadingSession:
		text := m.spinner.View() + " loading " + m.state.SessionID
		if m.state.Sync.Status == session.SyncError {
			text = errStyle.Render("could not load "+m.state.SessionID) + "\n" + mutedStyle.Render("retry, or reset to start over")
		}
		return paneStyle.Render(text)
	case session.StepReviewing:
		return m.renderReview()
	case session.StepAssigning:
		return m.renderAssigning()
	}
	return ""
}

func (m *Model) renderHeader() string {
	title := titleStyle.Render("tabsplit") + "  " + hotStyle.Render(stepTitles[m.state.Step])
	right := m.syncLabel()
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	bar := title + strings.Repeat(" ", gap) + right
	return barStyle.Width(m.width).Render(bar) + "\n"
}

func (m *Model) syncLabel() string {
	if !m.state.Shared {
		return mutedStyle.Render("local")
	}
	switch m.state.Sync.Status {
	case session.SyncSaving:
		return hotStyle.Render("saving")
	case session.SyncSaved:
		return okStyle.Render("saved")
	case session.SyncError:
		return errStyle.Render("not saved: " + m.state.Sync.Err)
	}
	return okStyle.Render("shared")
}

func (m *Model) renderStatusBar() string {
	left := m.status
	if m.statusErr {
		left = errStyle.Render(left)
	}
	right := mutedStyle.Render(":command  ?:help  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return "\n" + barStyle.Width(m.width).Render(left+strings.Repeat(" ", gap)+right)
}

func (m *Model) renderHelp() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Commands") + "\n\n")
	for _, c := range commandsFor(m.state.Step) {
		fmt.Fprintf(&sb, "%-26s %s\n", c.usage, mutedStyle.Render(c.help))
	}
	sb.WriteString("\n" + m.help.FullHelpView(m.keys.FullHelp()))
	return sb.String()
}

func (m *Model) renderLanding() string {
	lines := []string{
		titleStyle.Render("Split a restaurant bill"),
		"",
		"scan <path>     read a photo of the receipt",
		"manual          type the receipt in",
		"join <link>     open a bill someone shared",
	}
	if m.extractor == nil {
		lines = append(lines, "", mutedStyle.Render("offline: scanning and sharing are disabled"))
	}
	return paneStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderReview() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Products") + "\n\n")
	if len(m.state.Review) == 0 {
		sb.WriteString(mutedStyle.Render("no products yet, add <name> <qty> <price>") + "\n")
	}
	for i, id := range m.state.Review.IDs() {
		p := m.state.Review[id]
		fmt.Fprintf(&sb, "%2d  %-24s %3d × %10s\n", i+1, p.Name, p.Quantity, m.money.Format(p.Price))
	}
	sb.WriteString("\n" + hotStyle.Render("Total "+m.money.Format(m.state.Review.Value())))
	return paneStyle.Render(sb.String())
}

func (m *Model) renderAssigning() string {
	left := lipgloss.JoinVertical(lipgloss.Left,
		paneStyle.Render(m.renderProducts()),
		paneStyle.Render(m.renderGroups()),
	)
	right := paneStyle.Render(m.renderDiners())
	if m.width > 0 && m.width < 100 {
		return lipgloss.JoinVertical(lipgloss.Left, left, right)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *Model) renderProducts() string {
	s := m.state.Session
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Products") + "\n")
	for i, id := range s.MasterProducts.IDs() {
		p := s.MasterProducts[id]
		left := s.AvailableProducts[id].Quantity
		style := lipgloss.NewStyle()
		if left == 0 {
			style = mutedStyle
		}
		sb.WriteString(style.Render(fmt.Sprintf("%2d  %-20s %2d/%-2d %10s",
			i+1, p.Name, left, p.Quantity, m.money.Format(p.Price))) + "\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m *Model) renderGroups() string {
	s := m.state.Session
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Shared") + "\n")
	order := groupOrder(s)
	if len(order) == 0 {
		sb.WriteString(mutedStyle.Render("nothing shared yet"))
		return sb.String()
	}
	for i, id := range order {
		var names []string
		for _, dinerID := range s.SharedInstances[id] {
			if idx := s.DinerIndex(dinerID); idx >= 0 {
				names = append(names, s.Diners[idx].Name)
			}
		}
		fmt.Fprintf(&sb, "#%d  %-16s %s\n", i+1, groupProduct(s, id), strings.Join(names, ", "))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// groupProduct names the product a share group splits.
func groupProduct(s models.Session, group string) string {
	for _, d := range s.Diners {
		for _, item := range d.SelectedItems {
			if item.Kind == models.KindShared && item.ShareGroupID == group {
				return item.Name
			}
		}
	}
	return "?"
}

func (m *Model) renderDiners() string {
	bill := calculator.CalculateSplit(m.state.Session, m.tip)
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Diners") + "\n")
	if len(bill.Splits) == 0 {
		sb.WriteString(mutedStyle.Render("no diners yet, diner <name>") + "\n")
	}
	for i, split := range bill.Splits {
		fmt.Fprintf(&sb, "\n%s %s\n", hotStyle.Render(fmt.Sprintf("%d", i+1)), titleStyle.Render(split.Name))
		for j, item := range split.Items {
			desc := item.Description
			if item.Shared {
				desc += " (shared)"
			}
			fmt.Fprintf(&sb, "  %d. %-24s %10s\n", j+1, desc, m.money.Format(item.Amount))
		}
		if split.Discount.IsPositive() {
			fmt.Fprintf(&sb, "  %-27s %10s\n", "discount", "-"+m.money.Format(split.Discount))
		}
		fmt.Fprintf(&sb, "  %-27s %10s\n", "tip", m.money.Format(split.Tip))
		sb.WriteString(okStyle.Render(fmt.Sprintf("  %-27s %10s", "total", m.money.Format(split.Total))) + "\n")
	}

	sb.WriteString("\n" + mutedStyle.Render(strings.Repeat("─", 40)) + "\n")
	fmt.Fprintf(&sb, "%-29s %10s\n", "subtotal", m.money.Format(bill.Subtotal))
	if d := m.state.Session.Discount(); d.Percentage.IsPositive() {
		label := "discount " + m.money.Number(d.Percentage) + "%"
		if d.Cap.IsPositive() {
			label += " (cap " + m.money.Format(d.Cap) + ")"
		}
		fmt.Fprintf(&sb, "%-29s %10s\n", label, "-"+m.money.Format(bill.Discount))
	}
	fmt.Fprintf(&sb, "%-29s %10s\n", "tip "+m.money.Number(m.tip)+"%", m.money.Format(bill.Tip))
	sb.WriteString(hotStyle.Render(fmt.Sprintf("%-29s %10s", "total", m.money.Format(bill.Total))))
	if bill.Unassigned.IsPositive() {
		sb.WriteString("\n" + errStyle.Render("unassigned "+m.money.Format(bill.Unassigned)))
	}
	return sb.String()
}
