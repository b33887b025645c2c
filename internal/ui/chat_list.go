package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lechat-terminal/internal/store"
)

const previewLength = 48

type ChatListModel struct {
	list    list.Model
	chats   []store.Chat
	confirm ConfirmDeleteModel
	offline bool
	width   int
	height  int
	err     error
}

type chatItem struct {
	chat store.Chat
}

func (i chatItem) Title() string { return i.chat.Title }
func (i chatItem) Description() string {
	desc := fmt.Sprintf("Created: %s", FormatTime(i.chat.CreatedAt))
	if i.chat.LastMessage != nil && *i.chat.LastMessage != "" {
		desc += " | " + TruncatePreview(*i.chat.LastMessage, previewLength)
	}
	return desc
}
func (i chatItem) FilterValue() string { return i.chat.Title }

// ChatSelected is sent when the user opens a chat.
type ChatSelected struct {
	Chat store.Chat
}

// CreateNewChat is sent when the user asks for a new chat.
type CreateNewChat struct{}

// ReloadChats is sent when the user asks for a fresh chat list.
type ReloadChats struct{}

func NewChatListModel(chats []store.Chat, offline bool, width, height int) ChatListModel {
	items := make([]list.Item, len(chats))
	for i, c := range chats {
		items[i] = chatItem{chat: c}
	}

	l := list.New(items, CreateThemedDelegate(), width, height-4)
	l.Title = "Conversations"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	ConfigureListStyles(&l)

	// Disable all built-in key bindings except arrows and filter
	l.KeyMap.CursorUp = key.NewBinding(key.WithKeys("up"))
	l.KeyMap.CursorDown = key.NewBinding(key.WithKeys("down"))
	l.KeyMap.NextPage = key.NewBinding()
	l.KeyMap.PrevPage = key.NewBinding()
	l.KeyMap.GoToStart = key.NewBinding()
	l.KeyMap.GoToEnd = key.NewBinding()
	l.KeyMap.Filter = key.NewBinding(key.WithKeys("/"))
	l.KeyMap.ClearFilter = key.NewBinding(key.WithKeys("esc"))
	l.KeyMap.CancelWhileFiltering = key.NewBinding(key.WithKeys("esc"))
	l.KeyMap.AcceptWhileFiltering = key.NewBinding(key.WithKeys("enter"))
	l.KeyMap.ShowFullHelp = key.NewBinding()
	l.KeyMap.CloseFullHelp = key.NewBinding()
	l.KeyMap.Quit = key.NewBinding()
	l.KeyMap.ForceQuit = key.NewBinding()

	return ChatListModel{
		list:    l,
		chats:   chats,
		confirm: NewConfirmDeleteModel(),
		offline: offline,
		width:   width,
		height:  height,
	}
}

func (m ChatListModel) Init() tea.Cmd {
	return nil
}

func (m ChatListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		m.confirm.UpdateSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.confirm.IsVisible() {
			return m, m.confirm.HandleKey(msg)
		}

		switch msg.String() {
		case "ctrl+x":
			return m, tea.Quit

		case "enter":
			selectedItem := m.list.SelectedItem()
			if selectedItem == nil {
				return m, nil
			}
			chat := selectedItem.(chatItem).chat
			return m, func() tea.Msg {
				return ChatSelected{Chat: chat}
			}

		case "ctrl+n":
			return m, func() tea.Msg {
				return CreateNewChat{}
			}

		case "ctrl+r":
			return m, func() tea.Msg {
				return ReloadChats{}
			}

		case "ctrl+d":
			selectedItem := m.list.SelectedItem()
			if selectedItem == nil {
				return m, nil
			}
			m.confirm.Show(selectedItem.(chatItem).chat)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ChatListModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress Ctrl+X to exit", m.err))
	}

	helpText := "↑/↓: Navigate • Enter: Open • /: Filter • Ctrl+N: New • Ctrl+D: Delete • Ctrl+R: Reload • Ctrl+X: Exit"

	rows := []string{m.list.View()}
	if m.offline {
		rows = append(rows, ErrorMessageStyle.Render(" Offline: showing cached conversations"))
	}
	rows = append(rows, helpStyle.Render(helpText))

	view := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return m.confirm.RenderOverlay(view)
}

// RefreshChats replaces the displayed chat list.
func (m *ChatListModel) RefreshChats(chats []store.Chat, offline bool) {
	m.chats = chats
	m.offline = offline
	items := make([]list.Item, len(chats))
	for i, c := range chats {
		items[i] = chatItem{chat: c}
	}
	m.list.SetItems(items)
}
