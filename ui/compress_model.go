package ui

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lepinkainen/imgmin/imaging"
	"github.com/lepinkainen/imgmin/orchestrator"
	"github.com/mattn/go-shellwords"
)

const (
	previewHeight = 10
	logHeight     = 8
)

// CompressModel is the interactive front end: pick or paste an image, tune the
// controls and watch the compressor's log
type CompressModel struct {
	ctx   context.Context
	orch  *orchestrator.Orchestrator
	modes []string

	picker  filepicker.Model
	picking bool
	spinner spinner.Model
	logView viewport.Model

	state   orchestrator.State
	initial []string
	notice  string

	// Layout
	width  int
	height int

	quitting bool
	Version  string
}

// NewCompressModel creates the TUI around orch. modes is the list the mode
// selector cycles through, initial files are opened on start.
func NewCompressModel(ctx context.Context, orch *orchestrator.Orchestrator, modes []string, initial []string, version string) CompressModel {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".png", ".jpg", ".jpeg", ".PNG", ".JPG", ".JPEG"}
	fp.AutoHeight = true
	if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(ProcessingStyle))

	if len(modes) == 0 {
		modes = []string{orch.Controls().Mode}
	}

	return CompressModel{
		ctx:     ctx,
		orch:    orch,
		modes:   modes,
		picker:  fp,
		spinner: sp,
		logView: viewport.New(80, logHeight),
		state:   orch.State(),
		initial: initial,
		Version: version,
	}
}

// Init implements tea.Model
func (m CompressModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if len(m.initial) > 0 {
		paths := m.initial
		cmds = append(cmds, func() tea.Msg { return OpenFilesMsg{Paths: paths} })
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (m CompressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Paste {
			return m.open(parseDroppedPaths(string(msg.Runes)))
		}
		if m.picking {
			return m.updatePicker(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logView.Width = msg.Width - 4
		m.refresh()
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd

	case OpenFilesMsg:
		return m.open(msg.Paths)

	case WorkerMsg:
		m.orch.Handle(msg.Message)
		m.refresh()
		return m, waitForMessage(msg.Message.Task(), msg.source)

	case StreamClosedMsg:
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		if m.picking {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m CompressModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	c := m.orch.Controls()

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "o":
		m.picking = true
		return m, m.picker.Init()

	case "tab", "m", "right":
		c.Mode = m.modes[(m.modeIndex(c.Mode)+1)%len(m.modes)]
		return m.setControls(c)

	case "shift+tab", "left":
		c.Mode = m.modes[(m.modeIndex(c.Mode)+len(m.modes)-1)%len(m.modes)]
		return m.setControls(c)

	case "p":
		c.Progressive = !c.Progressive
		return m.setControls(c)

	case "a":
		c.AutoDownload = !c.AutoDownload
		return m.setControls(c)

	case "d":
		if path, err := m.orch.Download(); err != nil {
			m.notice = err.Error()
		} else {
			m.notice = "Saved " + path
		}
		m.refresh()

	default:
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m CompressModel) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" || msg.String() == "ctrl+c" {
		m.picking = false
		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.picking = false
		return m.open([]string{path})
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.notice = fmt.Sprintf("%s: %s", filepath.Base(path), (&orchestrator.ValidationError{}).Error())
	}
	return m, cmd
}

// open hands the first path to the orchestrator and starts listening for the task's messages
func (m CompressModel) open(paths []string) (tea.Model, tea.Cmd) {
	m.notice = ""
	files := make([]orchestrator.File, 0, len(paths))
	for _, p := range paths {
		files = append(files, orchestrator.FileFromPath(p))
	}

	ch, err := m.orch.Open(m.ctx, files...)
	m.refresh()
	if err != nil || ch == nil {
		return m, nil
	}
	return m, waitForMessage(m.state.Task.ID, ch)
}

func (m CompressModel) setControls(c orchestrator.Controls) (tea.Model, tea.Cmd) {
	ch, err := m.orch.SetControls(m.ctx, c)
	m.refresh()
	if err != nil || ch == nil {
		return m, nil
	}
	return m, waitForMessage(m.state.Task.ID, ch)
}

func (m CompressModel) modeIndex(mode string) int {
	for i, v := range m.modes {
		if v == mode {
			return i
		}
	}
	return 0
}

// refresh pulls a new snapshot from the orchestrator and updates the log view
func (m *CompressModel) refresh() {
	m.state = m.orch.State()

	lines := make([]string, len(m.state.Log))
	for i, line := range m.state.Log {
		if strings.Contains(line, "] ERROR ") {
			line = LogErrorStyle.Render(line)
		}
		lines[i] = line
	}
	m.logView.SetContent(strings.Join(lines, "\n"))
	m.logView.GotoBottom()
}

// View implements tea.Model
func (m CompressModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	header := HeaderStyle.Render(fmt.Sprintf("imgmin %s", m.Version))

	if m.picking {
		return strings.Join([]string{
			header,
			InfoStyle.Render("Pick a PNG or JPG image:"),
			m.picker.View(),
			DimStyle.Render("[enter] Select  [esc] Cancel"),
		}, "\n\n")
	}

	sections := []string{header, m.controlsView()}

	if m.state.Banner != "" {
		sections = append(sections, ErrorStyle.Render("❌ "+m.state.Banner))
	}
	if status := m.statusView(); status != "" {
		sections = append(sections, status)
	}
	if previews := m.previewView(); previews != "" {
		sections = append(sections, previews)
	}
	if len(m.state.Log) > 0 {
		sections = append(sections, PanelStyle.Render(m.logView.View()))
	}
	if m.notice != "" {
		sections = append(sections, InfoStyle.Render(m.notice))
	}

	help := "Controls: [o] Open  [tab] Mode  [p] Progressive  [a] Auto-download  [q] Quit"
	if m.state.DownloadReady {
		help = "Controls: [d] Download  [o] Open  [tab] Mode  [p] Progressive  [a] Auto-download  [q] Quit"
	}
	sections = append(sections, DimStyle.Render(help))

	return strings.Join(sections, "\n\n")
}

func (m CompressModel) controlsView() string {
	c := m.state.Controls

	var modes []string
	for _, mode := range m.modes {
		if mode == c.Mode {
			modes = append(modes, SelectedStyle.Render(mode))
		} else {
			modes = append(modes, " "+mode+" ")
		}
	}

	return fmt.Sprintf("Mode: %s   Progressive: %s   Auto-download: %s",
		strings.Join(modes, ""), onOff(c.Progressive), onOff(c.AutoDownload))
}

func (m CompressModel) statusView() string {
	t := m.state.Task
	switch {
	case t.ID == "":
		return InfoStyle.Render("Press [o] to pick an image, or drop one onto the terminal.")
	case t.InProgress:
		return fmt.Sprintf("%s %s", m.spinner.View(), ProcessingStyle.Render("Compressing "+t.FileName+"..."))
	case t.Failed():
		return ErrorStyle.Render("❌ Compression failed: " + t.Error)
	case m.state.SavedTo != "":
		return SuccessStyle.Render("✅ Saved " + m.state.SavedTo)
	case m.state.DownloadReady:
		return SuccessStyle.Render(fmt.Sprintf("✅ Done in %dms, press [d] to save %s",
			t.Elapsed.Milliseconds(), imaging.MinifiedName(t.FileName)))
	}
	return ""
}

func (m CompressModel) previewView() string {
	width := 32
	if m.width > 0 {
		width = max((m.width-8)/2, 8)
	}

	var panels []string
	if p := m.state.Original; p != nil {
		panels = append(panels, previewPanel("Original", p, width))
	}
	if p := m.state.Result; p != nil {
		panels = append(panels, previewPanel("Compressed", p, width))
	}
	if len(panels) == 0 {
		return ""
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panels...)
}

func previewPanel(title string, p *imaging.Preview, width int) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		InfoStyle.Render(title),
		p.Thumbnail(width, previewHeight),
		DimStyle.Render(p.Summary()),
	)
	return PanelStyle.Render(body)
}

func onOff(v bool) string {
	if v {
		return SuccessStyle.Render("on")
	}
	return DimStyle.Render("off")
}

// parseDroppedPaths splits text pasted by a terminal drag and drop into paths.
// Terminals quote or backslash-escape paths and some send file:// URLs. A paste
// that already names an existing file is used as is.
func parseDroppedPaths(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	whole := trimQuotes(s)
	if _, err := os.Stat(whole); err == nil {
		return []string{whole}
	}

	// backslashes in Windows paths are separators, not escapes
	if windowsPath.MatchString(s) {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}

	words, err := shellwords.Parse(s)
	if err != nil {
		return []string{whole}
	}

	paths := make([]string, 0, len(words))
	for _, p := range words {
		if strings.HasPrefix(p, "file://") {
			if u, err := url.Parse(p); err == nil {
				p = u.Path
			}
		}
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

var windowsPath = regexp.MustCompile(`(^|[\s"'])([A-Za-z]:\\|\\\\)`)

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
