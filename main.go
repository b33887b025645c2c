package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"lechat-terminal/internal/cache"
	"lechat-terminal/internal/completion"
	"lechat-terminal/internal/config"
	"lechat-terminal/internal/logging"
	"lechat-terminal/internal/reconciler"
	"lechat-terminal/internal/store"
	"lechat-terminal/internal/ui"
)

type appState int

const (
	stateChatList appState = iota
	stateChatCreate
	stateChatView
)

type model struct {
	state       appState
	storeClient *store.Client
	localCache  *cache.Cache
	rec         *reconciler.Reconciler

	// UI models
	chatListModel   ui.ChatListModel
	chatCreateModel ui.ChatCreateModel
	chatViewModel   ui.ChatViewModel

	// Current chat
	currentChat *store.Chat

	// One-shot readiness gate, opened on the first stable frame
	envReady bool

	// Screen size
	width  int
	height int

	// Error state
	err error
}

// chatsLoaded carries a fresh chat list; offline marks a cache fallback.
type chatsLoaded struct {
	chats   []store.Chat
	offline bool
}

type chatCreated struct {
	chat store.Chat
}

type chatCreateFailed struct {
	err error
}

func main() {
	appDir, err := config.AppDir()
	if err != nil {
		log.Fatalf("Failed to prepare application directory: %v", err)
	}

	if err := logging.Init(filepath.Join(appDir, "logs")); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Close()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Invalid configuration: %v", err)
		log.Fatalf("Invalid configuration: %v", err)
	}

	storeClient := store.NewClient(cfg.Store.URL, cfg.Store.Key,
		time.Duration(cfg.Store.TimeoutSeconds)*time.Second)

	completionClient := completion.NewClient(completion.Options{
		Endpoint:    cfg.Completion.Endpoint,
		APIKey:      cfg.Completion.Key,
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
		Timeout:     time.Duration(cfg.Completion.TimeoutSeconds) * time.Second,
	})

	// The cache is best effort: without it the app still works, it just
	// has nothing to show while offline.
	localCache, err := cache.Open(filepath.Join(appDir, "cache"))
	if err != nil {
		logging.Error("Failed to open local cache: %v", err)
		localCache = nil
	} else {
		defer localCache.Close()
	}

	var recCache reconciler.Cache
	if localCache != nil {
		recCache = localCache
	}
	rec := reconciler.New(storeClient, completionClient, recCache)
	defer rec.Close()

	initialModel := model{
		state:         stateChatList,
		storeClient:   storeClient,
		localCache:    localCache,
		rec:           rec,
		chatListModel: ui.NewChatListModel(nil, false, 80, 24),
		width:         80,
		height:        24,
	}

	p := tea.NewProgram(initialModel, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logging.Error("Program error: %v", err)
		log.Fatalf("Error running program: %v", err)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.chatListModel.Init(), m.loadChats())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.envReady {
			// First layout: the display is stable, open the gate. It
			// stays open for the rest of the process.
			m.envReady = true
			m.rec.SetReady()
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "ctrl+x" {
			return m, tea.Quit
		}

	case chatsLoaded:
		m.chatListModel.RefreshChats(msg.chats, msg.offline)
		return m, nil

	case ui.ChatSelected:
		m.currentChat = &msg.Chat
		m.state = stateChatView
		m.chatViewModel = ui.NewChatViewModel(msg.Chat, m.rec, m.width, m.height)
		return m, m.chatViewModel.Init()

	case ui.CreateNewChat:
		m.state = stateChatCreate
		m.chatCreateModel = ui.NewChatCreateModel(m.width, m.height)
		return m, m.chatCreateModel.Init()

	case ui.ChatCreateSubmitted:
		return m, m.createChat(msg.Title)

	case chatCreated:
		m.currentChat = &msg.chat
		m.state = stateChatView
		m.chatViewModel = ui.NewChatViewModel(msg.chat, m.rec, m.width, m.height)
		return m, m.chatViewModel.Init()

	case chatCreateFailed:
		logging.Error("Failed to create chat: %v", msg.err)
		m.state = stateChatList
		return m, m.loadChats()

	case ui.ReloadChats:
		return m, m.loadChats()

	case ui.DeleteChatConfirmed:
		return m, m.deleteChat(msg.ChatID)

	case ui.BackToChatList:
		m.currentChat = nil
		m.state = stateChatList
		rec := m.rec
		return m, tea.Batch(
			// Drop the previous chat's subscription and sequence.
			func() tea.Msg {
				rec.Initialize(context.Background(), "")
				return nil
			},
			m.loadChats(),
		)
	}

	// Delegate to current screen
	switch m.state {
	case stateChatList:
		newModel, cmd := m.chatListModel.Update(msg)
		m.chatListModel = newModel.(ui.ChatListModel)
		return m, cmd

	case stateChatCreate:
		newModel, cmd := m.chatCreateModel.Update(msg)
		m.chatCreateModel = newModel.(ui.ChatCreateModel)
		return m, cmd

	case stateChatView:
		newModel, cmd := m.chatViewModel.Update(msg)
		m.chatViewModel = newModel.(ui.ChatViewModel)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress Ctrl+C to quit", m.err)
	}

	switch m.state {
	case stateChatList:
		return m.chatListModel.View()
	case stateChatCreate:
		return m.chatCreateModel.View()
	case stateChatView:
		return m.chatViewModel.View()
	}

	return "Loading..."
}

// loadChats fetches the chat list, falling back to the local cache when the
// store is unreachable.
func (m model) loadChats() tea.Cmd {
	storeClient := m.storeClient
	localCache := m.localCache
	return func() tea.Msg {
		chats, err := storeClient.ListChats(context.Background())
		if err != nil {
			logging.Error("Failed to load chats: %v", err)
			if localCache == nil {
				return chatsLoaded{offline: true}
			}
			cached, cacheErr := localCache.Chats()
			if cacheErr != nil {
				logging.Error("Failed to read cached chats: %v", cacheErr)
			}
			return chatsLoaded{chats: cached, offline: true}
		}

		if localCache != nil {
			if err := localCache.SaveChats(chats); err != nil {
				logging.Error("Failed to cache chats: %v", err)
			}
		}
		return chatsLoaded{chats: chats}
	}
}

func (m model) createChat(title string) tea.Cmd {
	storeClient := m.storeClient
	localCache := m.localCache
	return func() tea.Msg {
		chat, err := storeClient.CreateChat(context.Background(), title)
		if err != nil {
			return chatCreateFailed{err: err}
		}
		if localCache != nil {
			if err := localCache.SaveChat(chat); err != nil {
				logging.Error("Failed to cache chat %s: %v", chat.ID, err)
			}
		}
		return chatCreated{chat: chat}
	}
}

// deleteChat removes the chat upstream (the store cascades to its messages)
// and mirrors the delete into the cache, then reloads the list.
func (m model) deleteChat(chatID string) tea.Cmd {
	storeClient := m.storeClient
	localCache := m.localCache
	loadChats := m.loadChats()
	return func() tea.Msg {
		if err := storeClient.DeleteChat(context.Background(), chatID); err != nil {
			logging.Error("Failed to delete chat %s: %v", chatID, err)
			return loadChats()
		}
		if localCache != nil {
			if err := localCache.DeleteChat(chatID); err != nil {
				logging.Error("Failed to drop cached chat %s: %v", chatID, err)
			}
		}
		return loadChats()
	}
}
