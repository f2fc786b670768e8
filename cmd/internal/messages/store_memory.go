package messages

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// InMemoryStore is the dev/test Store used when no database is configured.
// A single mutex serializes all operations, which makes the drain atomic.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	msgs   []Message
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{msgs: make([]Message, 0, 256)}
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// Insert appends a new unopened message.
func (s *InMemoryStore) Insert(ctx context.Context, in InsertInput) (Message, error) {
	if in.Sender == "" || in.Receiver == "" {
		return Message{}, errors.New("messages: invalid insert")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m := Message{
		ID:       s.nextID,
		Sender:   in.Sender,
		Receiver: in.Receiver,
		Text:     in.Text,
		Date:     in.Date,
	}
	s.msgs = append(s.msgs, m)
	return m, nil
}

// DrainUnopened marks every unopened sender->receiver message opened and returns them.
func (s *InMemoryStore) DrainUnopened(ctx context.Context, sender, receiver string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var out []Message
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.Opened || m.Sender != sender || m.Receiver != receiver {
			continue
		}
		m.Opened = true
		out = append(out, *m)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// FetchConversation returns the q.Skip..q.Skip+q.Take window of the conversation.
func (s *InMemoryStore) FetchConversation(ctx context.Context, q ConversationQuery) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var all []Message
	for _, m := range s.msgs {
		if !m.between(q.User, q.Partner) {
			continue
		}
		if m.Sender == q.Partner && m.Receiver == q.User && !m.Opened && q.User != q.Partner {
			continue
		}
		all = append(all, m)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })

	if q.Skip >= len(all) || q.Take <= 0 {
		return []Message{}, nil
	}
	end := q.Skip + q.Take
	if end > len(all) {
		end = len(all)
	}
	return all[q.Skip:end], nil
}
