package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"lechat-terminal/internal/logging"
	"lechat-terminal/internal/reconciler"
	"lechat-terminal/internal/store"
)

const (
	titleHeight    = 4
	textareaHeight = 5
	helpHeight     = 2
	viewPadding    = 2
)

// SendFailureNotice is the single generic notice shown for any failed send,
// regardless of which step failed.
const SendFailureNotice = "Failed to get AI response. Please try again."

type ProcessingState int

const (
	StateIdle ProcessingState = iota
	StateSending
	StateRefreshing
)

type ChatViewModel struct {
	chat     store.Chat
	rec      *reconciler.Reconciler
	messages []store.Message

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width           int
	height          int
	processingState ProcessingState
	notice          string
	mdRenderer      *glamour.TermRenderer

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// HydrationComplete is sent once the initial history load has finished.
type HydrationComplete struct{}

// SequenceUpdated is sent whenever the reconciled message sequence changed.
type SequenceUpdated struct {
	ok bool
}

type sendFinished struct {
	err error
}

type refreshFinished struct{}

// createMarkdownRenderer creates a markdown renderer with fallback handling
func createMarkdownRenderer(width int) *glamour.TermRenderer {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-10),
	)
	if err == nil {
		return renderer
	}

	logging.Error("Failed to create markdown renderer with auto style: %v, trying fallback", err)

	renderer, err = glamour.NewTermRenderer()
	if err != nil {
		logging.Error("Failed to create basic markdown renderer: %v", err)
		return nil
	}
	return renderer
}

func (m *ChatViewModel) renderMarkdown(content string) string {
	if m.mdRenderer == nil || content == "" {
		return content
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		logging.Error("Markdown rendering error: %v, falling back to plain text", err)
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func NewChatViewModel(chat store.Chat, rec *reconciler.Reconciler, width, height int) ChatViewModel {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Focus()
	ta.CharLimit = 500
	ta.SetWidth(width - 4)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	// Keep only essential editing keys
	ta.KeyMap.CharacterForward = key.NewBinding(key.WithKeys("right"))
	ta.KeyMap.CharacterBackward = key.NewBinding(key.WithKeys("left"))
	ta.KeyMap.LineStart = key.NewBinding(key.WithKeys("home"))
	ta.KeyMap.LineEnd = key.NewBinding(key.WithKeys("end"))
	ta.KeyMap.DeleteCharacterBackward = key.NewBinding(key.WithKeys("backspace"))
	ta.KeyMap.DeleteCharacterForward = key.NewBinding(key.WithKeys("delete"))
	ta.KeyMap.LineNext = key.NewBinding()
	ta.KeyMap.LinePrevious = key.NewBinding()
	ta.KeyMap.WordForward = key.NewBinding()
	ta.KeyMap.WordBackward = key.NewBinding()
	ta.KeyMap.DeleteWordBackward = key.NewBinding()
	ta.KeyMap.DeleteWordForward = key.NewBinding()
	ta.KeyMap.DeleteAfterCursor = key.NewBinding()
	ta.KeyMap.DeleteBeforeCursor = key.NewBinding()
	ta.KeyMap.InsertNewline = key.NewBinding()
	ta.KeyMap.Paste = key.NewBinding()

	viewportHeight := height - titleHeight - textareaHeight - helpHeight - viewPadding
	vp := viewport.New(width-6, viewportHeight)
	vp.SetContent("")
	vp.MouseWheelDelta = 2

	vp.KeyMap.Down = key.NewBinding(key.WithKeys("down"))
	vp.KeyMap.Up = key.NewBinding(key.WithKeys("up"))
	vp.KeyMap.PageDown = key.NewBinding(key.WithKeys("pgdown"))
	vp.KeyMap.PageUp = key.NewBinding(key.WithKeys("pgup"))
	vp.KeyMap.HalfPageDown = key.NewBinding()
	vp.KeyMap.HalfPageUp = key.NewBinding()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	ctx, cancel := context.WithCancel(context.Background())

	return ChatViewModel{
		chat:       chat,
		rec:        rec,
		viewport:   vp,
		textarea:   ta,
		spinner:    sp,
		width:      width,
		height:     height,
		mdRenderer: createMarkdownRenderer(width),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

func (m ChatViewModel) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.hydrate(),
		m.waitForUpdate(),
	)
}

func (m ChatViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewportHeight := msg.Height - titleHeight - textareaHeight - helpHeight - viewPadding
		m.viewport.Width = msg.Width - 6
		m.viewport.Height = viewportHeight
		m.textarea.SetWidth(msg.Width - 4)
		m.mdRenderer = createMarkdownRenderer(msg.Width)
		m.renderMessages()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+x":
			m.cancelFunc()
			return m, tea.Quit

		case "esc":
			m.cancelFunc()
			return m, func() tea.Msg {
				return BackToChatList{}
			}

		case "ctrl+r":
			if m.processingState == StateIdle {
				m.processingState = StateRefreshing
				m.notice = ""
				return m, m.refresh()
			}
			return m, nil

		case "enter":
			if m.processingState == StateIdle && strings.TrimSpace(m.textarea.Value()) != "" {
				text := m.textarea.Value()
				m.textarea.Reset()
				m.processingState = StateSending
				m.notice = ""
				return m, m.send(text)
			}
		}

	case HydrationComplete:
		m.messages = m.rec.Messages()
		m.renderMessages()
		m.viewport.GotoBottom()
		return m, nil

	case SequenceUpdated:
		if !msg.ok {
			// Reconciler closed; stop listening.
			return m, nil
		}
		m.messages = m.rec.Messages()
		m.renderMessages()
		m.viewport.GotoBottom()
		return m, m.waitForUpdate()

	case sendFinished:
		m.processingState = StateIdle
		if msg.err != nil {
			logging.Error("Send failed for chat %s: %v", m.chat.ID, msg.err)
			if !errors.Is(msg.err, reconciler.ErrEmptyMessage) && !errors.Is(msg.err, reconciler.ErrSendInFlight) {
				m.notice = SendFailureNotice
			}
		}
		return m, nil

	case refreshFinished:
		m.processingState = StateIdle
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.processingState == StateIdle {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatViewModel) View() string {
	var b strings.Builder

	b.WriteString(TitleWithPaddingStyle.Render(m.chat.Title) + "\n")

	statusLine := fmt.Sprintf("Created: %s | Messages: %d", FormatTime(m.chat.CreatedAt), len(m.messages))
	switch m.processingState {
	case StateSending:
		statusLine += " | " + m.spinner.View() + " Thinking..."
	case StateRefreshing:
		statusLine += " | " + m.spinner.View() + " Refreshing..."
	}
	b.WriteString(statusBarStyle.Render(statusLine) + "\n")

	if m.notice != "" {
		b.WriteString(ErrorMessageStyle.Render(" "+m.notice) + "\n")
	} else {
		b.WriteString("\n")
	}

	b.WriteString(RenderViewportWithBorder(m.viewport.View()))
	b.WriteString("\n")

	if scrollInfo := m.renderScrollIndicator(); scrollInfo != "" {
		b.WriteString(scrollInfo)
	}
	b.WriteString("\n\n")

	b.WriteString(m.textarea.View() + "\n")

	helpText := "Enter: Send • ↑/↓: Scroll • PgUp/PgDn: Page Scroll • Ctrl+R: Refresh • Esc: Back • Ctrl+X: Exit"
	b.WriteString(helpStyle.Render(helpText))

	return b.String()
}

func (m ChatViewModel) hydrate() tea.Cmd {
	return func() tea.Msg {
		m.rec.Initialize(m.ctx, m.chat.ID)
		return HydrationComplete{}
	}
}

func (m ChatViewModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		return sendFinished{err: m.rec.Send(m.ctx, text)}
	}
}

func (m ChatViewModel) refresh() tea.Cmd {
	return func() tea.Msg {
		m.rec.Refresh(m.ctx)
		return refreshFinished{}
	}
}

// waitForUpdate blocks until the reconciler signals a sequence change, then
// reports it to the update loop, which re-arms the wait.
func (m ChatViewModel) waitForUpdate() tea.Cmd {
	updates := m.rec.Updates()
	return func() tea.Msg {
		_, ok := <-updates
		return SequenceUpdated{ok: ok}
	}
}

func (m *ChatViewModel) renderMessages() {
	var b strings.Builder

	for _, msg := range m.messages {
		timestamp := GetTimestampStyle(m.width).Render(FormatTime(msg.CreatedAt))

		if msg.Role == store.RoleUser {
			label := UserMessageLabelStyle.Render("You:")
			content := m.renderMarkdown(msg.Content)
			b.WriteString(GetUserMessageContentStyle(m.width).Render(label + "\n" + content))
		} else {
			label := AssistantMessageLabelStyle.Render("Assistant:")
			content := m.renderMarkdown(msg.Content)
			b.WriteString(GetAssistantMessageContentStyle(m.width).Render(label + "\n" + content))
		}
		b.WriteString("\n" + timestamp + "\n\n")
	}

	m.viewport.SetContent(b.String())
}

func (m ChatViewModel) renderScrollIndicator() string {
	if m.viewport.TotalLineCount() <= m.viewport.Height {
		return ""
	}

	scrollPercent := int(m.viewport.ScrollPercent() * 100)
	return ScrollIndicatorStyle.Render(fmt.Sprintf("Scroll: %d%% ↕", scrollPercent))
}
