package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lechat-terminal/internal/store"
)

type chatCreateField int

const (
	fieldTitle chatCreateField = iota
	fieldCreateButton
)

type ChatCreateModel struct {
	titleInput   textinput.Model
	currentField chatCreateField
	width        int
	height       int
}

// ChatCreateSubmitted is sent when the user confirms the new chat form.
type ChatCreateSubmitted struct {
	Title string
}

// BackToChatList is sent when a screen wants to return to the chat list.
type BackToChatList struct{}

func NewChatCreateModel(width, height int) ChatCreateModel {
	titleInput := textinput.New()
	titleInput.Placeholder = store.DefaultChatTitle
	titleInput.Focus()
	titleInput.CharLimit = 100
	titleInput.Width = 50

	return ChatCreateModel{
		titleInput:   titleInput,
		currentField: fieldTitle,
		width:        width,
		height:       height,
	}
}

func (m ChatCreateModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatCreateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+x":
			return m, tea.Quit

		case "esc":
			return m, func() tea.Msg {
				return BackToChatList{}
			}

		case "tab", "shift+tab", "up", "down":
			if m.currentField == fieldTitle {
				m.currentField = fieldCreateButton
				m.titleInput.Blur()
			} else {
				m.currentField = fieldTitle
				m.titleInput.Focus()
			}
			return m, nil

		case "enter":
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	m.titleInput, cmd = m.titleInput.Update(msg)
	return m, cmd
}

func (m ChatCreateModel) submit() tea.Cmd {
	title := strings.TrimSpace(m.titleInput.Value())
	if title == "" {
		title = store.DefaultChatTitle
	}
	return func() tea.Msg {
		return ChatCreateSubmitted{Title: title}
	}
}

func (m ChatCreateModel) View() string {
	var b strings.Builder

	b.WriteString(TitleWithPaddingStyle.Render("New Conversation"))
	b.WriteString("\n\n")

	label := InactiveLabelStyle
	if m.currentField == fieldTitle {
		label = ActiveLabelStyle
	}
	b.WriteString(" " + label.Render("Title") + "\n")
	b.WriteString(" " + m.titleInput.View() + "\n\n")

	b.WriteString(" " + RenderButton("Create", m.currentField == fieldCreateButton))
	b.WriteString("\n")

	helpText := "Tab: Switch Field • Enter: Create • Esc: Back • Ctrl+X: Exit"
	b.WriteString(helpStyle.Render(helpText))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}
