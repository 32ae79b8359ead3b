// Package reply defines the contract of a streaming reply source: the request
// sent out, and the token, completion and error callbacks delivered back.
package reply

import (
	"context"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
)

type Request struct {
	Messages []projection.Turn
	Model    string
	APIKey   string
	Mode     conversation.Mode
}

// Completion is the terminal success event of a stream.
type Completion struct {
	Text     string
	Thinking string
	Sources  []conversation.SearchResult
}

// Callbacks receive zero or more tokens followed by exactly one of
// OnComplete or OnError. Nil callbacks are skipped.
type Callbacks struct {
	OnToken    func(token string)
	OnComplete func(completion Completion)
	OnError    func(err error)
}

func (c Callbacks) Token(token string) {
	if c.OnToken != nil {
		c.OnToken(token)
	}
}

func (c Callbacks) Complete(completion Completion) {
	if c.OnComplete != nil {
		c.OnComplete(completion)
	}
}

func (c Callbacks) Error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Source streams a reply. Stream blocks until the terminal callback has been
// called. Cancelling ctx ends the stream with OnError(ctx.Err()).
type Source interface {
	Stream(ctx context.Context, req Request, callbacks Callbacks)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, req Request, callbacks Callbacks)

func (f SourceFunc) Stream(ctx context.Context, req Request, callbacks Callbacks) {
	f(ctx, req, callbacks)
}
