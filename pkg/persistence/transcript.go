package persistence

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/locus/pkg/conversation"
)

// TranscriptEntry is one message of an imported transcript.
type TranscriptEntry struct {
	Role     conversation.Role `json:"role" yaml:"role"`
	Content  string            `json:"content" yaml:"content"`
	Model    string            `json:"model,omitempty" yaml:"model,omitempty"`
	Thinking string            `json:"thinking,omitempty" yaml:"thinking,omitempty"`
}

// ReadTranscript decodes a JSON or YAML list of {role, content} entries.
func ReadTranscript(r io.Reader, format Format) ([]TranscriptEntry, error) {
	var entries []TranscriptEntry
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&entries)
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&entries)
	default:
		return nil, errors.Errorf("unsupported transcript format %s", format)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "could not decode transcript")
	}
	return entries, nil
}

// LoadTranscript reads a transcript file, picking the decoder from its
// extension.
func LoadTranscript(path string) ([]TranscriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open transcript %s", path)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return ReadTranscript(f, FormatFromPath(path))
}

// BuildConversation turns a transcript into a single-node conversation. The
// title is derived from the first user message, like a conversation built
// one message at a time.
func BuildConversation(entries []TranscriptEntry, now time.Time) (*conversation.Conversation, error) {
	if len(entries) == 0 {
		return nil, errors.New("transcript is empty")
	}
	c := conversation.NewConversation(now)
	for i, entry := range entries {
		options := []conversation.MessageOption{conversation.WithTime(now)}
		if entry.Model != "" {
			options = append(options, conversation.WithModelID(entry.Model))
		}
		if entry.Thinking != "" {
			options = append(options, conversation.WithThinking(entry.Thinking))
		}
		msg := conversation.NewMessage(entry.Role, entry.Content, options...)
		if err := c.Apply(conversation.MutateAddMessage(msg), now); err != nil {
			return nil, errors.Wrapf(err, "transcript entry %d", i)
		}
	}
	return c, nil
}
