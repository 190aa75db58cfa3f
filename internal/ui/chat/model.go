// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/ember/internal/session"
	"github.com/morganforge/ember/internal/storage"
	"github.com/morganforge/ember/internal/transport"
	"github.com/morganforge/ember/internal/ui/components"
	"github.com/morganforge/ember/internal/ui/styles"
	"github.com/morganforge/ember/internal/util"
)

// listModelsTimeout bounds the catalog fetch for the picker overlay.
const listModelsTimeout = 10 * time.Second

// =============================================================================
// CHAT MODEL
// =============================================================================

// Config carries the dependencies for the chat view.
type Config struct {
	Session   *session.Session
	Client    *transport.Client
	Theme     *styles.Theme
	Markdown  bool
	ExportDir string
	Logger    *log.Logger
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	sess   *session.Session
	client *transport.Client
	theme  *styles.Theme
	keys   KeyMap
	logger *log.Logger

	markdownEnabled bool
	exportDir       string

	viewport  viewport.Model
	textarea  textarea.Model
	spinner   components.Spinner
	statusBar *components.StatusBar
	banner    *components.ErrorBanner

	gate     *RenderGate
	program  *tea.Program
	renderer *conversationRenderer

	picker        *ModelPicker
	pickerLoading bool

	notice string

	width   int
	height  int
	ticking bool
}

// New creates the chat view. Call SetProgram before running it so streaming
// updates can reach the Bubble Tea loop.
func New(cfg Config) *Model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(2)
	ta.Focus()

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	m := &Model{
		sess:            cfg.Session,
		client:          cfg.Client,
		theme:           cfg.Theme,
		keys:            DefaultKeyMap(),
		logger:          logger,
		markdownEnabled: cfg.Markdown,
		exportDir:       cfg.ExportDir,
		textarea:        ta,
		viewport:        viewport.New(80, 20),
		spinner:         components.NewSpinner(cfg.Theme),
		statusBar:       components.NewStatusBar(cfg.Theme),
		banner:          components.NewErrorBanner(cfg.Theme),
		gate:            NewRenderGate(),
		width:           80,
		height:          24,
	}
	m.rebuildRenderer()
	return m
}

// SetProgram wires the session's change callback to the Bubble Tea program.
// The callback runs on the session's pump goroutine; the gate decides when a
// wake-up message is worth sending.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	m.sess.SetOnChange(func() {
		if m.gate.Mark() {
			p.Send(wakeMsg{})
		}
	})
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// rebuildRenderer recreates the width-dependent renderers.
func (m *Model) rebuildRenderer() {
	var md *markdownRenderer
	if m.markdownEnabled {
		md = newMarkdownRenderer(m.viewport.Width, m.theme.IsDark)
	}
	m.renderer = newConversationRenderer(m.theme, md, m.viewport.Width)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh(&cmds)
		return m, tea.Batch(cmds...)

	case wakeMsg:
		m.refreshIfDirty(&cmds)
		if !m.ticking {
			m.ticking = true
			cmds = append(cmds, streamTickCmd())
		}
		return m, tea.Batch(cmds...)

	case streamTickMsg:
		if !m.ticking {
			return m, nil
		}
		m.refreshIfDirty(&cmds)
		if m.sess.Status().Busy() || !m.gate.TrySleep() {
			cmds = append(cmds, streamTickCmd())
		} else {
			m.ticking = false
		}
		return m, tea.Batch(cmds...)

	case modelsLoadedMsg:
		m.pickerLoading = false
		if msg.err != nil {
			m.notice = styles.RenderError("could not load models: " + util.TruncateWidth(msg.err.Error(), 60))
			return m, nil
		}
		m.picker = NewModelPicker(msg.models, m.sess.Model(), m.theme)
		return m, nil

	case exportResultMsg:
		if msg.err != nil {
			m.notice = styles.RenderError("export failed: " + util.TruncateWidth(msg.err.Error(), 60))
		} else {
			m.notice = styles.RenderSuccess("exported to " + msg.path)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Everything else (spinner frames, blink) flows to the components.
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	cmds = append(cmds, cmd)
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey dispatches a key press.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picker != nil {
		return m.handlePickerKey(msg)
	}

	var cmds []tea.Cmd

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.sess.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		m.submit(&cmds)
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.NewLine):
		m.textarea.InsertString("\n")
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		m.sess.Cancel()
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		if err := m.sess.Retry(context.Background()); err != nil {
			m.notice = styles.RenderWarning(retryNotice(err))
		} else {
			m.notice = ""
		}
		m.refresh(&cmds)
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.PickModel):
		if m.pickerLoading {
			return m, nil
		}
		m.pickerLoading = true
		m.notice = ""
		return m, m.loadModelsCmd()

	case key.Matches(msg, m.keys.Clear):
		if err := m.sess.Clear(); err != nil {
			m.notice = styles.RenderWarning("cannot clear while a reply is streaming")
		} else {
			m.notice = ""
		}
		m.refresh(&cmds)
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// handlePickerKey drives the model picker overlay.
func (m *Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.picker.MoveUp()
	case "down", "j":
		m.picker.MoveDown()
	case "enter":
		if selected := m.picker.Selected(); selected != nil {
			m.sess.SetModel(selected.ID)
			m.statusBar.SetModel(selected.ID)
		}
		m.picker = nil
	case "esc", "ctrl+p":
		m.picker = nil
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// submit sends the composed text as a new turn.
func (m *Model) submit(cmds *[]tea.Cmd) {
	text := m.textarea.Value()
	if strings.TrimSpace(text) == "" {
		return
	}

	switch err := m.sess.Submit(context.Background(), text); {
	case err == nil:
		m.textarea.Reset()
		m.notice = ""
	case errors.Is(err, session.ErrBusy):
		m.notice = styles.RenderWarning("a reply is still streaming; esc to stop it")
	case errors.Is(err, session.ErrEmptyInput):
		// Whitespace-only input, keep the composer as is.
	default:
		m.notice = styles.RenderError(util.TruncateWidth(err.Error(), 60))
	}
	m.refresh(cmds)
}

// retryNotice maps a retry error to a user-facing hint.
func retryNotice(err error) string {
	switch {
	case errors.Is(err, session.ErrBusy):
		return "a reply is still streaming; esc to stop it"
	case errors.Is(err, session.ErrNothingToRetry):
		return "nothing to retry yet"
	default:
		return err.Error()
	}
}

// loadModelsCmd fetches the model catalog for the picker.
func (m *Model) loadModelsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), listModelsTimeout)
		defer cancel()
		models, err := client.ListModels(ctx)
		return modelsLoadedMsg{models: models, err: err}
	}
}

// exportCmd writes the conversation to a markdown file in the export dir.
func (m *Model) exportCmd() tea.Cmd {
	conv := m.sess.Conversation()
	dir := m.exportDir
	return func() tea.Msg {
		if conv == nil || conv.Len() == 0 {
			return exportResultMsg{err: errors.New("nothing to export")}
		}
		name := "ember-" + time.Now().Format("20060102-150405") + ".md"
		path := filepath.Join(dir, name)
		md := storage.ExportMarkdown(conv)
		if err := util.AtomicWriteFile(path, []byte(md), 0o644); err != nil {
			return exportResultMsg{err: err}
		}
		return exportResultMsg{path: path}
	}
}

// =============================================================================
// REFRESH
// =============================================================================

// resize recomputes layout after a terminal size change.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.theme.SetSize(width, height)
	m.statusBar.SetWidth(width)
	m.banner.SetWidth(width)
	m.textarea.SetWidth(width - 4)

	// header(1) + transient(1) + input(textarea+border) + status(1)
	inputHeight := m.textarea.Height() + 1
	vpHeight := height - 3 - inputHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight

	m.rebuildRenderer()
}

// refreshIfDirty re-renders only when the gate has pending changes.
func (m *Model) refreshIfDirty(cmds *[]tea.Cmd) {
	if m.gate.Take() {
		m.refresh(cmds)
	}
}

// refresh rebuilds the viewport from the current session snapshot.
func (m *Model) refresh(cmds *[]tea.Cmd) {
	conv := m.sess.Conversation()
	status := m.sess.Status()

	m.statusBar.SetStatus(status)
	m.statusBar.SetModel(m.sess.Model())

	content := m.renderer.Render(conv)
	if status == session.StatusError {
		if banner := m.banner.View(m.sess.LastError()); banner != "" {
			content += "\n\n" + banner
		}
	}

	follow := status.Busy() || m.viewport.AtBottom()
	m.viewport.SetContent(content)
	if follow {
		m.viewport.GotoBottom()
	}

	if status.Busy() && !m.spinner.IsActive() {
		*cmds = append(*cmds, m.spinner.Start())
	}
	if !status.Busy() {
		m.spinner.Stop()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m *Model) View() string {
	if m.picker != nil {
		return lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center, m.picker.View())
	}

	header := m.theme.Header.Width(m.width).Render(
		m.theme.HeaderTitle.Render("ember") + "  " +
			m.theme.HeaderModel.Render(m.sess.Model()))

	transient := ""
	switch {
	case m.spinner.IsActive():
		transient = m.spinner.View()
	case m.pickerLoading:
		transient = m.theme.ThinkingText.Render("Loading models...")
	case m.notice != "":
		transient = m.notice
	}

	input := m.theme.InputContainer.Width(m.width - 2).Render(m.textarea.View())

	return strings.Join([]string{
		header,
		m.viewport.View(),
		transient,
		input,
		m.statusBar.View(),
	}, "\n")
}
