package conversation

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser:
		return true
	}
	return false
}

// Mode is the response mode a message was requested with.
type Mode string

const (
	ModeStandard  Mode = "standard"
	ModeDeepThink Mode = "deepThink"
	ModeWebSearch Mode = "webSearch"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeDeepThink, ModeWebSearch:
		return Mode(s), nil
	}
	return ModeStandard, fmt.Errorf("unknown mode %q", s)
}

// SearchResult is a web source attached to an assistant reply.
type SearchResult struct {
	Title   string `json:"title" yaml:"title"`
	URL     string `json:"url" yaml:"url"`
	Snippet string `json:"snippet" yaml:"snippet"`
	Favicon string `json:"favicon,omitempty" yaml:"favicon,omitempty"`
}

// Message is one turn of an exchange. Once appended to a node it is never
// modified; branches share the same *Message values for their inherited prefix.
type Message struct {
	ID        MessageID `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// ParentID is the previous message in the same node's run, informational only.
	ParentID MessageID `json:"parentId" yaml:"parentId"`

	ModelID  string         `json:"modelId,omitempty" yaml:"modelId,omitempty"`
	Mode     Mode           `json:"mode,omitempty" yaml:"mode,omitempty"`
	Sources  []SearchResult `json:"sources,omitempty" yaml:"sources,omitempty"`
	Thinking string         `json:"thinking,omitempty" yaml:"thinking,omitempty"`
}

type MessageOption func(*Message)

func WithModelID(modelID string) MessageOption {
	return func(message *Message) {
		message.ModelID = modelID
	}
}

func WithMode(mode Mode) MessageOption {
	return func(message *Message) {
		message.Mode = mode
	}
}

func WithSources(sources []SearchResult) MessageOption {
	return func(message *Message) {
		if len(sources) == 0 {
			message.Sources = nil
			return
		}
		message.Sources = append([]SearchResult(nil), sources...)
	}
}

func WithThinking(thinking string) MessageOption {
	return func(message *Message) {
		message.Thinking = thinking
	}
}

func WithTime(t time.Time) MessageOption {
	return func(message *Message) {
		message.Timestamp = t
	}
}

func WithID(id MessageID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

// NewMessage creates a detached message. Its ParentID is assigned when it is
// appended to a node.
func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:        NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func (m *Message) String() string {
	return m.Content
}

func (m *Message) withParent(parentID MessageID) *Message {
	ret := *m
	ret.ParentID = parentID
	return &ret
}

// Messages is an ordered run of messages.
type Messages []*Message

func (ms Messages) IDs() []MessageID {
	ret := make([]MessageID, len(ms))
	for i, m := range ms {
		ret[i] = m.ID
	}
	return ret
}

// IndexOf returns the position of the message with the given ID, or -1.
func (ms Messages) IndexOf(id MessageID) int {
	for i, m := range ms {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (ms Messages) Last() *Message {
	if len(ms) == 0 {
		return nil
	}
	return ms[len(ms)-1]
}

// clone copies the slice header into fresh backing storage so that appends on
// the copy can never write into the original.
func (ms Messages) clone() Messages {
	if ms == nil {
		return Messages{}
	}
	ret := make(Messages, len(ms))
	copy(ret, ms)
	return ret
}
