// Package reconciler merges the three sources a chat's message list is fed
// from (the initial history fetch, the optimistic echo of local inserts,
// and the realtime channel) into one ordered, deduplicated sequence.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"lechat-terminal/internal/logging"
	"lechat-terminal/internal/store"
)

var (
	// ErrEmptyMessage is returned by Send when the trimmed text is empty.
	// No store or completion call is made.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInFlight is returned by Send while another send is still
	// running for this reconciler.
	ErrSendInFlight = errors.New("another send is in flight")

	// ErrNoActiveChat is returned by Send when no chat is selected.
	ErrNoActiveChat = errors.New("no chat selected")
)

// Store is the slice of the conversation store the reconciler needs.
type Store interface {
	ListMessages(ctx context.Context, chatID string) ([]store.Message, error)
	InsertMessage(ctx context.Context, msg store.NewMessage) (store.Message, error)
	Subscribe(ctx context.Context, chatID string, onInsert func(store.Message)) (store.Subscription, error)
}

// Completer generates a reply for a single user utterance.
type Completer interface {
	Complete(ctx context.Context, text string) (string, error)
}

// Cache is an optional local fallback consulted when the store is
// unreachable during hydration. Cache failures are logged and swallowed.
type Cache interface {
	Messages(chatID string) ([]store.Message, error)
	SaveMessages(chatID string, msgs []store.Message) error
}

// Reconciler maintains the message sequence for one displayed chat.
//
// All mutation goes through the mutex, so merges are applied one at a time
// in arrival order. The ready gate is one-shot: until SetReady is called,
// merges are dropped and hydration results are discarded. The generation
// counter ties every fetch and subscription callback to the Initialize call
// that started it, so work finishing after a chat switch cannot touch the
// new chat's sequence.
type Reconciler struct {
	store     Store
	completer Completer
	cache     Cache

	mu         sync.Mutex
	chatID     string
	seq        []store.Message
	byID       map[string]struct{}
	ready      bool
	sending    bool
	refreshing bool
	gen        uint64
	sub        store.Subscription
	closed     bool

	updates chan struct{}
}

// New creates a reconciler. cache may be nil.
func New(s Store, c Completer, cache Cache) *Reconciler {
	return &Reconciler{
		store:     s,
		completer: c,
		cache:     cache,
		byID:      make(map[string]struct{}),
		updates:   make(chan struct{}, 1),
	}
}

// SetReady opens the one-shot readiness gate. Before this, neither merges
// nor hydration results mutate the sequence. The gate never resets.
func (r *Reconciler) SetReady() {
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

// ChatID returns the id of the chat currently reconciled.
func (r *Reconciler) ChatID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatID
}

// Messages returns a snapshot of the current sequence.
func (r *Reconciler) Messages() []store.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]store.Message, len(r.seq))
	copy(snapshot, r.seq)
	return snapshot
}

// Updates signals whenever the sequence changed. Signals coalesce; consumers
// should re-read Messages on every receive. The channel is closed by Close.
func (r *Reconciler) Updates() <-chan struct{} {
	return r.updates
}

// Initialize switches the reconciler to chatID: it tears down the previous
// subscription, clears the sequence, subscribes to the chat's realtime
// channel and hydrates the history. An empty chatID just clears. Hydration
// is best effort: a failed fetch falls back to the local cache or an empty
// sequence, and no error surfaces.
func (r *Reconciler) Initialize(ctx context.Context, chatID string) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	oldSub := r.sub
	r.sub = nil
	r.chatID = chatID
	r.seq = nil
	r.byID = make(map[string]struct{})
	r.mu.Unlock()

	if oldSub != nil {
		oldSub.Close()
	}
	r.notify()

	if chatID == "" {
		return
	}

	// Subscribe before fetching so nothing inserted during the fetch is
	// missed; the id dedup absorbs the overlap between both paths.
	sub, err := r.store.Subscribe(ctx, chatID, func(msg store.Message) {
		r.mergeFromRealtime(gen, msg)
	})
	if err != nil {
		logging.Error("Failed to subscribe to chat %s: %v", chatID, err)
	} else {
		r.adoptSubscription(gen, sub)
	}

	messages, err := r.store.ListMessages(ctx, chatID)
	if err != nil {
		logging.Error("Failed to load messages for chat %s: %v", chatID, err)
		messages = r.cachedMessages(chatID)
	} else {
		r.cacheMessages(chatID, messages)
	}

	r.mu.Lock()
	if r.gen != gen || !r.ready {
		// A newer Initialize won, or the display is not ready yet; this
		// hydration must not land.
		r.mu.Unlock()
		return
	}
	r.replaceLocked(messages)
	r.mu.Unlock()
	r.notify()
}

// adoptSubscription registers sub unless a newer Initialize has already
// taken over, in which case the subscription is closed on the spot.
func (r *Reconciler) adoptSubscription(gen uint64, sub store.Subscription) {
	r.mu.Lock()
	if r.gen != gen || r.closed {
		r.mu.Unlock()
		sub.Close()
		return
	}
	r.sub = sub
	r.mu.Unlock()
}

// Merge folds one message into the sequence. Calls before the readiness
// gate opens are dropped. Merging an id already present is a no-op, which
// makes the insert echo and the realtime push of the same row safe in
// either arrival order.
func (r *Reconciler) Merge(msg store.Message) {
	r.mu.Lock()
	changed := r.mergeLocked(msg)
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

func (r *Reconciler) mergeFromRealtime(gen uint64, msg store.Message) {
	r.mu.Lock()
	if r.gen != gen {
		// Stale callback from a subscription already replaced.
		r.mu.Unlock()
		return
	}
	changed := r.mergeLocked(msg)
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

func (r *Reconciler) mergeLocked(msg store.Message) bool {
	if !r.ready {
		return false
	}
	if _, exists := r.byID[msg.ID]; exists {
		return false
	}

	// Insertion-point search keeping ascending (created_at, id) order. The
	// id tie-break makes the order of equal timestamps deterministic.
	i := sort.Search(len(r.seq), func(i int) bool {
		if r.seq[i].CreatedAt.Equal(msg.CreatedAt) {
			return r.seq[i].ID > msg.ID
		}
		return r.seq[i].CreatedAt.After(msg.CreatedAt)
	})
	r.seq = append(r.seq, store.Message{})
	copy(r.seq[i+1:], r.seq[i:])
	r.seq[i] = msg
	r.byID[msg.ID] = struct{}{}
	return true
}

func (r *Reconciler) replaceLocked(messages []store.Message) {
	r.seq = nil
	r.byID = make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		if _, exists := r.byID[msg.ID]; exists {
			continue
		}
		r.seq = append(r.seq, msg)
		r.byID[msg.ID] = struct{}{}
	}
	sort.SliceStable(r.seq, func(i, j int) bool {
		if r.seq[i].CreatedAt.Equal(r.seq[j].CreatedAt) {
			return r.seq[i].ID < r.seq[j].ID
		}
		return r.seq[i].CreatedAt.Before(r.seq[j].CreatedAt)
	})
}

// Send runs one send cycle: persist the user turn, ask the completion
// service for a reply, persist the reply. Each step can fail independently
// and nothing already persisted is rolled back; a user message without an
// answer stays in the sequence. Only one send may run at a time.
func (r *Reconciler) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(norm.NFC.String(text))
	if text == "" {
		return ErrEmptyMessage
	}

	r.mu.Lock()
	if r.chatID == "" {
		r.mu.Unlock()
		return ErrNoActiveChat
	}
	if r.sending {
		r.mu.Unlock()
		return ErrSendInFlight
	}
	r.sending = true
	chatID := r.chatID
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.sending = false
		r.mu.Unlock()
	}()

	userMsg, err := r.store.InsertMessage(ctx, store.NewMessage{
		ChatID:  chatID,
		Role:    store.RoleUser,
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}
	// Optimistic echo, ahead of the realtime push for the same row.
	r.Merge(userMsg)

	reply, err := r.completer.Complete(ctx, text)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	assistantMsg, err := r.store.InsertMessage(ctx, store.NewMessage{
		ChatID:  chatID,
		Role:    store.RoleAssistant,
		Content: reply,
	})
	if err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	r.Merge(assistantMsg)

	r.cacheMessages(chatID, r.Messages())
	return nil
}

// Refresh re-fetches the chat's history and replaces the sequence. On any
// failure the existing sequence stays untouched; the failure is only
// logged, never surfaced.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.mu.Lock()
	if r.chatID == "" || r.refreshing {
		r.mu.Unlock()
		return
	}
	r.refreshing = true
	chatID := r.chatID
	gen := r.gen
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.refreshing = false
		r.mu.Unlock()
	}()

	messages, err := r.store.ListMessages(ctx, chatID)
	if err != nil {
		logging.Error("Failed to refresh messages for chat %s: %v", chatID, err)
		return
	}
	r.cacheMessages(chatID, messages)

	r.mu.Lock()
	if r.gen != gen || !r.ready {
		r.mu.Unlock()
		return
	}
	r.replaceLocked(messages)
	r.mu.Unlock()
	r.notify()
}

// Close tears down the active subscription and the updates channel. The
// reconciler must not be used afterwards.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.gen++
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	close(r.updates)
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.updates <- struct{}{}:
	default:
	}
}

func (r *Reconciler) cachedMessages(chatID string) []store.Message {
	if r.cache == nil {
		return nil
	}
	messages, err := r.cache.Messages(chatID)
	if err != nil {
		logging.Error("Failed to read cached messages for chat %s: %v", chatID, err)
		return nil
	}
	if len(messages) > 0 {
		logging.Info("Serving %d cached messages for chat %s", len(messages), chatID)
	}
	return messages
}

func (r *Reconciler) cacheMessages(chatID string, messages []store.Message) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SaveMessages(chatID, messages); err != nil {
		logging.Error("Failed to cache messages for chat %s: %v", chatID, err)
	}
}
