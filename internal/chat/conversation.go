// Package chat is the conversation store: chat threads with a seeded
// greeting, derived titles, and one active thread.
package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// DefaultTitle is shown until the first user message names the thread.
const DefaultTitle = "New conversation"

// TitleMaxRunes bounds a derived title.
const TitleMaxRunes = 30

// Greeting seeds every new or reset thread.
const Greeting = "Halo! 👋 Saya asisten AI DNAI. Tanyakan apa saja tentang makanan, nutrisi, atau kalori!\n\n" +
	"Contoh pertanyaan:\n" +
	"• \"Berapa kalori dalam nasi goreng?\"\n" +
	"• \"Makanan apa yang tinggi protein?\"\n" +
	"• \"Tips diet sehat untuk pemula\""

// Apology replaces the bot reply when the chat backend fails.
const Apology = "Maaf, terjadi kesalahan. Pastikan layanan chat di backend sudah dikonfigurasi."

// QuickQuestions are offered while a thread has no user turns yet.
var QuickQuestions = []string{
	"Kalori nasi goreng?",
	"Makanan tinggi protein?",
	"Tips diet sehat?",
	"Cara menghitung kalori?",
}

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is one independent chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasUserTurn reports whether anyone has written in the thread yet.
func (c Conversation) HasUserTurn() bool {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

func (c Conversation) clone() Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	return c
}

// DeriveTitle turns a first user message into a thread title: whitespace
// runs collapse to one space and the result is cut to TitleMaxRunes runes.
func DeriveTitle(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	if s == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(s) <= TitleMaxRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:TitleMaxRunes]))
}
