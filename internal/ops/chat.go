package ops

import (
	"context"
	"strings"
	"time"

	"github.com/zzeiidann/DNAI/internal/chat"
	"github.com/zzeiidann/DNAI/internal/errors"
)

// SendChatInput contains parameters for the SendChat operation.
type SendChatInput struct {
	Message        string
	ConversationID string // optional; selects the thread first
}

// SendChatOutput contains the result of the SendChat operation.
type SendChatOutput struct {
	Conversation chat.Conversation `json:"conversation"`
	Reply        string            `json:"reply"`
	// Failed is true when the backend did not answer and Reply is the apology.
	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// SendChat appends the user's message to the active thread, asks the chat
// backend once, and appends its reply to that same thread even if another
// thread became active meanwhile. A backend failure appends the fixed
// apology instead and is reported in the output, not as an error.
func SendChat(ctx context.Context, store *chat.Store, c Chatter, input SendChatInput) (*SendChatOutput, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, errors.NewInvalidRequest("message is required")
	}

	if id := strings.TrimSpace(input.ConversationID); id != "" {
		if _, err := store.Select(ctx, id); err != nil {
			return nil, err
		}
	}

	asked, err := store.AppendUserTurn(ctx, message)
	if err != nil {
		return nil, err
	}

	out := &SendChatOutput{}
	reply, chatErr := c.Chat(ctx, message)
	if chatErr != nil {
		if errors.Is(chatErr, errors.ErrCancelled) {
			return nil, chatErr
		}
		reply = chat.Apology
		out.Failed = true
		out.Error = chatErr.Error()
	}

	conv, err := store.AppendBotTurn(ctx, asked.ID, reply)
	if err != nil {
		return nil, err
	}
	out.Conversation = conv
	out.Reply = reply
	return out, nil
}

// ConversationSummary is one row of ListConversations.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListConversationsOutput contains the result of the ListConversations operation.
type ListConversationsOutput struct {
	ActiveID      string                `json:"active_id"`
	Conversations []ConversationSummary `json:"conversations"`
}

// ListConversations returns every thread, most recently updated first.
func ListConversations(store *chat.Store) *ListConversationsOutput {
	active := store.ActiveID()
	list := store.List()
	out := &ListConversationsOutput{
		ActiveID:      active,
		Conversations: make([]ConversationSummary, 0, len(list)),
	}
	for _, c := range list {
		out.Conversations = append(out.Conversations, ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: len(c.Messages),
			Active:       c.ID == active,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return out
}

// ConversationInput addresses one thread. An empty ID means the active thread.
type ConversationInput struct {
	ID string
}

// GetConversation returns a thread with its messages.
func GetConversation(store *chat.Store, input ConversationInput) (*chat.Conversation, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		c := store.Active()
		return &c, nil
	}
	c, ok := store.Get(id)
	if !ok {
		return nil, errors.NewNotFound("conversation", id)
	}
	return &c, nil
}

// CreateConversation starts a new greeting thread and makes it active.
func CreateConversation(ctx context.Context, store *chat.Store) (*chat.Conversation, error) {
	c, err := store.CreateConversation(ctx)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConversationOutput contains the result of the DeleteConversation operation.
type DeleteConversationOutput struct {
	ID       string `json:"id"`
	Deleted  bool   `json:"deleted"`
	ActiveID string `json:"active_id"` // active thread after the delete
}

// DeleteConversation removes a thread. The store is never left empty.
func DeleteConversation(ctx context.Context, store *chat.Store, input ConversationInput) (*DeleteConversationOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := store.DeleteConversation(ctx, id); err != nil {
		return nil, err
	}
	return &DeleteConversationOutput{ID: id, Deleted: true, ActiveID: store.ActiveID()}, nil
}

// SelectConversation makes a thread active.
func SelectConversation(ctx context.Context, store *chat.Store, input ConversationInput) (*chat.Conversation, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	c, err := store.Select(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ResetConversation clears a thread back to the greeting. An empty ID
// resets the active thread.
func ResetConversation(ctx context.Context, store *chat.Store, input ConversationInput) (*chat.Conversation, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = store.ActiveID()
	}
	c, err := store.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
