// Package cache keeps a local, write-through copy of chats and messages so
// the client still has something to show when the hosted store is
// unreachable. It is strictly best effort: callers log and move on when it
// fails, and its contents are replaced wholesale on every successful fetch.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"lechat-terminal/internal/store"
)

type Cache struct {
	db *badger.DB
}

func Open(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	return &Cache{db: db}, nil
}

func chatKey(chatID string) []byte {
	return []byte(fmt.Sprintf("metadata:chat:%s", chatID))
}

func messageKey(chatID, messageID string) []byte {
	return []byte(fmt.Sprintf("chat:%s:msg:%s", chatID, messageID))
}

func messagePrefix(chatID string) []byte {
	return []byte(fmt.Sprintf("chat:%s:msg:", chatID))
}

// SaveChats replaces the cached chat list.
func (c *Cache) SaveChats(chats []store.Chat) error {
	return c.db.Update(func(txn *badger.Txn) error {
		// Drop chats that no longer exist upstream before writing the
		// fresh list.
		stale, err := keysWithPrefix(txn, []byte("metadata:chat:"))
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for _, chat := range chats {
			data, err := json.Marshal(chat)
			if err != nil {
				return fmt.Errorf("failed to marshal chat: %w", err)
			}
			if err := txn.Set(chatKey(chat.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveChat upserts a single chat.
func (c *Cache) SaveChat(chat store.Chat) error {
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chatKey(chat.ID), data)
	})
}

// Chats returns the cached chat list, newest first.
func (c *Cache) Chats() ([]store.Chat, error) {
	var chats []store.Chat
	prefix := []byte("metadata:chat:")

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var chat store.Chat
				if err := json.Unmarshal(val, &chat); err != nil {
					return err
				}
				chats = append(chats, chat)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cached chats: %w", err)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

// DeleteChat drops a chat and all its cached messages, mirroring the
// backend's cascade.
func (c *Cache) DeleteChat(chatID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(chatKey(chatID)); err != nil {
			return err
		}
		keys, err := keysWithPrefix(txn, messagePrefix(chatID))
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveMessages replaces a chat's cached history.
func (c *Cache) SaveMessages(chatID string, messages []store.Message) error {
	return c.db.Update(func(txn *badger.Txn) error {
		stale, err := keysWithPrefix(txn, messagePrefix(chatID))
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for _, msg := range messages {
			data, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if err := txn.Set(messageKey(chatID, msg.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Messages returns a chat's cached history in chronological order.
func (c *Cache) Messages(chatID string) ([]store.Message, error) {
	var messages []store.Message
	prefix := messagePrefix(chatID)

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg store.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cached messages: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// keysWithPrefix collects key copies so they can be deleted while iterating
// inside the same transaction.
func keysWithPrefix(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}
