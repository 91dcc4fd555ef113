package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// tickMsg is fired every second to update the elapsed timer.
type tickMsg time.Time

// state represents the current phase of a command.
type state int

const (
	stateInit       state = iota
	stateLoggingIn        // waiting for the login endpoint
	stateRefreshing       // silent token refresh in flight
	stateLoading          // walking a collection
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for the dashboard CLI.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	server  string
	user    string
	loading string
	pages   int
	items   int
	started time.Time
	elapsed time.Duration

	summary string
	errMsg  string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

// Lipgloss styles, shared by every view.
var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != stateLoading {
			return m, nil
		}
		m.elapsed = time.Time(msg).Sub(m.started)
		return m, tickAfterSecond()

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	// ── command messages ─────────────────────────────────────────────────────

	case MsgBanner:
		m.server = msg.Server
		return m, nil

	case MsgSessionRestored:
		m.addStatus(statusOK, "Using stored session from "+msg.Path)
		return m, nil

	case MsgNoSession:
		m.addStatus(statusInfo, "Not logged in")
		return m, nil

	case MsgLoggingIn:
		m.state = stateLoggingIn
		m.addStatus(statusInfo, "Logging in as "+msg.Email)
		return m, nil

	case MsgLoginOK:
		m.state = stateInit
		m.addStatus(statusOK, "Login successful")
		return m, nil

	case MsgLoginFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Login failed: %v", msg.Err))
		return m, nil

	case MsgProfileReady:
		m.user = fmt.Sprintf("%s (%s)", msg.Name, msg.Role)
		m.addStatus(statusOK, "Signed in as "+m.user)
		return m, nil

	case MsgProfileUnavailable:
		m.addStatus(statusWarn, fmt.Sprintf("Could not load profile: %v", msg.Err))
		return m, nil

	case MsgAccessTokenRejected:
		m.state = stateRefreshing
		m.addStatus(statusWarn, "Access token rejected (401), refreshing...")
		return m, nil

	case MsgTokenRefreshed:
		m.state = stateLoading
		m.addStatus(statusOK, "Token refreshed, retrying request...")
		return m, nil

	case MsgRefreshFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	case MsgSessionExpired:
		m.addStatus(statusWarn, "Session expired, run 'login' to sign in again")
		return m, nil

	case MsgLoading:
		m.state = stateLoading
		m.loading = msg.What
		m.pages, m.items = 0, 0
		m.started = time.Now()
		m.elapsed = 0
		return m, tickAfterSecond()

	case MsgPageFetched:
		m.pages = msg.Page
		m.items += msg.Items
		return m, nil

	case MsgListReady:
		m.addStatus(statusOK, fmt.Sprintf("Fetched %d %s", msg.Rows, msg.Name))
		return m, nil

	case MsgLoggedOut:
		m.addStatus(statusOK, "Logged out")
		return m, nil

	case MsgDone:
		m.summary = msg.Summary
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

func (m Model) title() string {
	if m.server == "" {
		return "  Committee Dashboard  "
	}
	return "  Committee Dashboard · " + m.server + "  "
}

// viewMain is shown while the command is running.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render(m.title()))
	b.WriteString("\n\n")

	if m.user != "" {
		b.WriteString(styleDim.Render("Signed in as " + m.user))
		b.WriteString("\n\n")
	}

	switch m.state {
	case stateLoggingIn:
		b.WriteString(m.spinner.View())
		b.WriteString(" Logging in...\n")

	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing access token...\n")

	case stateLoading:
		b.WriteString(m.spinner.View())
		b.WriteString(" Fetching " + styleBold.Render(m.loading))
		if m.pages > 0 {
			b.WriteString(styleDim.Render(fmt.Sprintf("  page %d, %d items", m.pages, m.items)))
		}
		if m.elapsed >= time.Second {
			b.WriteString(styleDim.Render("  " + formatDuration(m.elapsed)))
		}
		b.WriteString("\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Working...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown after the command finished.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Done"))
	b.WriteString("\n")
	if m.summary != "" {
		b.WriteString("\n")
		b.WriteString(styleBold.Render("  " + m.summary))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ Command failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
