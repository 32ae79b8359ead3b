package chat

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/weaviate/tiktoken-go"

	"github.com/go-go-golems/locus/pkg/catalog"
	"github.com/go-go-golems/locus/pkg/projection"
)

// TokenCounter estimates the number of tokens in a text. A negative result
// means no estimate is available.
type TokenCounter func(text string) int

// perMessageOverhead approximates the role and separator tokens of the chat format.
const perMessageOverhead = 4

// NewTiktokenCounter counts with the cl100k_base encoding. The encoding is
// loaded on first use; when it cannot be loaded the counter returns -1.
func NewTiktokenCounter() TokenCounter {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			var err error
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				log.Debug().Err(err).Msg("token estimation disabled")
			}
		})
		if enc == nil {
			return -1
		}
		return len(enc.Encode(text, nil, nil))
	}
}

// EstimateHistory sums the estimated tokens of history, or returns -1.
func EstimateHistory(counter TokenCounter, history []projection.Turn) int {
	if counter == nil {
		return -1
	}
	total := 0
	for _, turn := range history {
		n := counter(turn.Content)
		if n < 0 {
			return -1
		}
		total += n + perMessageOverhead
	}
	return total
}

func (c *Controller) warnOnContextSize(history []projection.Turn, model catalog.Model) bool {
	if model.ContextLength <= 0 {
		return false
	}
	estimate := EstimateHistory(c.counter, history)
	if estimate <= model.ContextLength {
		return false
	}
	log.Warn().
		Str("model", model.ID).
		Int("estimated_tokens", estimate).
		Int("context_length", model.ContextLength).
		Msg("history exceeds the model context length")
	return true
}
