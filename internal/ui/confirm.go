package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	overlay "github.com/rmhubbert/bubbletea-overlay"

	"lechat-terminal/internal/store"
)

// ConfirmDeleteModel is the modal asking the user to confirm a chat delete.
// It renders as an overlay on top of the chat list.
type ConfirmDeleteModel struct {
	chat    store.Chat
	visible bool
	width   int
	height  int
}

// DeleteChatConfirmed is sent when the user confirms the delete.
type DeleteChatConfirmed struct {
	ChatID string
}

func NewConfirmDeleteModel() ConfirmDeleteModel {
	return ConfirmDeleteModel{}
}

func (m *ConfirmDeleteModel) Show(chat store.Chat) {
	m.chat = chat
	m.visible = true
}

func (m *ConfirmDeleteModel) Hide() {
	m.visible = false
}

func (m *ConfirmDeleteModel) IsVisible() bool {
	return m.visible
}

func (m *ConfirmDeleteModel) UpdateSize(width, height int) {
	m.width = width
	m.height = height
}

// HandleKey consumes a key press while the modal is visible.
func (m *ConfirmDeleteModel) HandleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "enter":
		chatID := m.chat.ID
		m.Hide()
		return func() tea.Msg {
			return DeleteChatConfirmed{ChatID: chatID}
		}
	case "n", "esc":
		m.Hide()
	}
	return nil
}

func (m ConfirmDeleteModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmDeleteModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

func (m ConfirmDeleteModel) View() string {
	dialogWidth := m.width / 2
	if dialogWidth < 40 {
		dialogWidth = 40
	}

	var content strings.Builder
	content.WriteString(ConfirmTitleStyle.Render("Delete chat"))
	content.WriteString("\n\n")
	content.WriteString(ConfirmMessageStyle.Render(
		fmt.Sprintf("Delete %q and all its messages?", m.chat.Title)))
	content.WriteString("\n\n")
	content.WriteString(HelpTextSimpleStyle.Render("Y/Enter: Delete • N/Esc: Cancel"))

	return ConfirmBorderStyle.Width(dialogWidth - 4).Render(content.String())
}

// RenderOverlay paints the modal centered over the background view.
func (m ConfirmDeleteModel) RenderOverlay(backgroundView string) string {
	if !m.visible {
		return backgroundView
	}

	overlayModel := overlay.New(
		m,
		&staticViewModel{content: backgroundView},
		overlay.Center,
		overlay.Center,
		0,
		0,
	)
	return overlayModel.View()
}

// staticViewModel is a simple model that renders static content (background)
type staticViewModel struct {
	content string
}

func (m staticViewModel) Init() tea.Cmd {
	return nil
}

func (m staticViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

func (m staticViewModel) View() string {
	return m.content
}
