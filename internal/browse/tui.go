package browse

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/inboxsheet/internal/model"
)

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")) // bright blue

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(18)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// Entry is one stored sheet row.
type Entry struct {
	Seq    string
	Record model.JobRecord
}

// EntriesFromRows turns raw sheet rows into entries, newest first. A leading
// header row is skipped, as are rows with no cells.
func EntriesFromRows(rows [][]string) []Entry {
	if len(rows) > 0 && len(rows[0]) > 0 && strings.TrimSpace(rows[0][0]) == model.SheetHeader[0] {
		rows = rows[1:]
	}
	entries := make([]Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) == 0 {
			continue
		}
		entries = append(entries, Entry{Seq: row[0], Record: model.RecordFromRow(row)})
	}
	return entries
}

type browseModel struct {
	title   string
	entries []Entry
	table   table.Model
	width   int
	height  int
	ready   bool

	view           viewState
	detail         Entry
	detailViewport viewport.Model
}

func newBrowseModel(title string, entries []Entry) browseModel {
	t := table.New(
		table.WithColumns(columnsFor(80)),
		table.WithRows(tableRows(entries)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("24")).
		Bold(false)
	t.SetStyles(styles)

	return browseModel{title: title, entries: entries, table: t}
}

// columnsFor spreads the available width over the list columns.
func columnsFor(width int) []table.Column {
	flex := max(width-6-12-12-6, 40)
	return []table.Column{
		{Title: "S.No", Width: 6},
		{Title: "Company", Width: flex * 3 / 10},
		{Title: "Position", Width: flex * 4 / 10},
		{Title: "Location", Width: flex * 3 / 10},
		{Title: "Deadline", Width: 12},
		{Title: "Date", Width: 12},
	}
}

func tableRows(entries []Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		r := e.Record
		rows = append(rows, table.Row{
			e.Seq,
			r.Company(),
			r.Position(),
			model.CellText(r.Location),
			model.CellText(r.Deadline),
			model.CellText(r.Date),
		})
	}
	return rows
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}
	return m, nil
}

func (m browseModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "enter":
		return m.openDetailView()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m browseModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if target := openTarget(model.CellText(m.detail.Record.LinkOrEmail)); target != "" {
			openURL(target)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m browseModel) openDetailView() (tea.Model, tea.Cmd) {
	if len(m.entries) == 0 {
		return m, nil
	}
	cursor := clamp(m.table.Cursor(), 0, len(m.entries)-1)
	m.view = viewDetail
	m.detail = m.entries[cursor]
	m.detailViewport = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
	m.detailViewport.SetContent(renderDetail(m.detail, max(m.width-8, 20)))
	return m, nil
}

func (m *browseModel) recalcLayout() {
	// Title (1) + border top/bottom (2) + status bar (1).
	m.table.SetColumns(columnsFor(m.width - 4))
	m.table.SetWidth(max(m.width-4, 20))
	m.table.SetHeight(max(m.height-4, 5))
	if m.view == viewDetail {
		m.detailViewport.Width = max(m.width-4, 20)
		m.detailViewport.Height = max(m.height-4, 5)
		m.detailViewport.SetContent(renderDetail(m.detail, max(m.width-8, 20)))
	}
	m.ready = true
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewList() string {
	title := titleStyle.Render(fmt.Sprintf("%s (%d)", m.title, len(m.entries)))

	body := m.table.View()
	if len(m.entries) == 0 {
		body = emptyStyle.Render("  (no rows yet)")
	}
	content := borderStyle.Width(max(m.width-2, 20)).Render(body)

	statusBar := statusBarStyle.Width(m.width).Render(" ↑/↓ move  Enter detail  q quit")
	return title + "\n" + content + "\n" + statusBar
}

func (m browseModel) viewDetail() string {
	title := detailTitleStyle.Render("Row " + m.detail.Seq)
	content := borderStyle.Width(max(m.width-2, 20)).Render(m.detailViewport.View())

	statusText := " esc/backspace back  ↑/↓ scroll  q quit"
	if openTarget(model.CellText(m.detail.Record.LinkOrEmail)) != "" {
		statusText = " o open link  esc/backspace back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)
	return title + "\n" + content + "\n" + statusBar
}

// renderDetail lists every column of the row. Long free-text fields go below
// a divider and are wrapped to width.
func renderDetail(e Entry, width int) string {
	var b strings.Builder

	addField := func(label string, value any) {
		text := model.CellText(value)
		if text == "" {
			text = "-"
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(text))
		b.WriteByte('\n')
	}

	r := e.Record
	addField(model.SheetHeader[0], e.Seq)
	addField("Date", r.Date)
	addField("Company Name", r.CompanyName)
	addField("Job Position", r.JobPosition)
	addField("Location", r.Location)
	addField("Role Type", r.RoleType)
	addField("CTC", r.CTC)
	addField("Deadline", r.Deadline)
	addField("Link/Email", r.LinkOrEmail)

	divider := func(label string) string {
		fill := strings.Repeat("─", max(width-len(label), 3))
		return dividerStyle.Render(label + fill)
	}
	for _, long := range []struct {
		label string
		value any
	}{
		{"── Job Description ", r.JobDescription},
		{"── Details ", r.Details},
	} {
		text := model.CellText(long.value)
		if text == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(divider(long.label) + "\n\n")
		b.WriteString(bodyStyle.Render(wordWrap(text, width)) + "\n")
	}
	return b.String()
}

// openTarget returns something a browser or mail client can open, or "".
func openTarget(link string) string {
	link = strings.TrimSpace(link)
	lower := strings.ToLower(link)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "mailto:"):
		return link
	case strings.Contains(link, "@") && !strings.ContainsAny(link, " ,;"):
		return "mailto:" + link
	}
	return ""
}

func wordWrap(text string, width int) string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) <= width {
				line += " " + w
			} else {
				out = append(out, line)
				line = w
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system handler, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the full-screen browser over entries.
func Run(title string, entries []Entry) error {
	p := tea.NewProgram(newBrowseModel(title, entries), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
