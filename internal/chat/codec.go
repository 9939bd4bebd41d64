package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zzeiidann/DNAI/internal/errors"
)

type wireConversation struct {
	ID        *string       `json:"id"`
	Title     *string       `json:"title"`
	Messages  []wireMessage `json:"messages"`
	CreatedAt *string       `json:"created_at"`
	UpdatedAt *string       `json:"updated_at"`
}

type wireMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// EncodeConversations serializes the thread collection as a JSON array.
func EncodeConversations(convs []Conversation) ([]byte, error) {
	if convs == nil {
		convs = []Conversation{}
	}
	return json.Marshal(convs)
}

// DecodeConversations parses and validates a stored thread collection.
// Empty input and JSON null decode to no threads.
func DecodeConversations(key string, data []byte) ([]Conversation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Conversation{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errors.NewCorruptState(key, "expected a JSON array of conversations")
	}

	convs := make([]Conversation, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		c, err := decodeConversation(r)
		if err != nil {
			return nil, errors.NewCorruptState(key, fmt.Sprintf("conversation %d: %v", i, err))
		}
		if seen[c.ID] {
			return nil, errors.NewCorruptState(key, fmt.Sprintf("conversation %d: duplicate id %q", i, c.ID))
		}
		seen[c.ID] = true
		convs = append(convs, c)
	}
	return convs, nil
}

func decodeConversation(r json.RawMessage) (Conversation, error) {
	var w wireConversation
	if err := json.Unmarshal(r, &w); err != nil {
		return Conversation{}, fmt.Errorf("malformed conversation: %v", err)
	}
	if w.ID == nil || strings.TrimSpace(*w.ID) == "" {
		return Conversation{}, fmt.Errorf("id is required")
	}

	c := Conversation{ID: *w.ID, Title: DefaultTitle}
	if w.Title != nil && strings.TrimSpace(*w.Title) != "" {
		c.Title = *w.Title
	}

	var err error
	if c.CreatedAt, err = decodeTime("created_at", w.CreatedAt); err != nil {
		return Conversation{}, err
	}
	if c.UpdatedAt, err = decodeTime("updated_at", w.UpdatedAt); err != nil {
		return Conversation{}, err
	}

	c.Messages = make([]Message, 0, len(w.Messages))
	for j, m := range w.Messages {
		if m.Role == nil || (Role(*m.Role) != RoleUser && Role(*m.Role) != RoleBot) {
			return Conversation{}, fmt.Errorf("message %d: role must be user or bot", j)
		}
		if m.Content == nil {
			return Conversation{}, fmt.Errorf("message %d: content is required", j)
		}
		c.Messages = append(c.Messages, Message{Role: Role(*m.Role), Content: *m.Content})
	}
	return c, nil
}

func decodeTime(field string, s *string) (time.Time, error) {
	if s == nil {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q is not an ISO 8601 timestamp", field, *s)
	}
	return t, nil
}

// EncodeActive serializes the active thread id as a JSON string.
func EncodeActive(id string) ([]byte, error) {
	return json.Marshal(id)
}

// DecodeActive reads the active thread id. A bare unquoted id is accepted.
func DecodeActive(key string, data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] != '"' {
		if bytes.ContainsAny(trimmed, "{}[]\"") {
			return "", errors.NewCorruptState(key, "expected a conversation id")
		}
		return string(trimmed), nil
	}
	var id string
	if err := json.Unmarshal(trimmed, &id); err != nil {
		return "", errors.NewCorruptState(key, "expected a conversation id")
	}
	return id, nil
}
