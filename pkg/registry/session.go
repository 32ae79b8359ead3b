package registry

import (
	"github.com/go-go-golems/locus/pkg/conversation"
)

type ViewMode string

const (
	ViewChat ViewMode = "chat"
	ViewTree ViewMode = "tree"
)

const DefaultSelectedModel = "google/gemini-2.0-flash-001"

var DefaultTransitionOrigin = conversation.Position{X: 50, Y: 50}

// Session is the state kept next to the conversations. Only SelectedModel
// and APIKey are persisted; the rest resets on every start.
type Session struct {
	SelectedModel    string                `json:"selectedModel"`
	APIKey           string                `json:"-"`
	Loading          bool                  `json:"loading"`
	Error            string                `json:"error,omitempty"`
	ViewMode         ViewMode              `json:"viewMode"`
	TransitionOrigin conversation.Position `json:"transitionOrigin"`
}

func defaultSession() Session {
	return Session{
		SelectedModel:    DefaultSelectedModel,
		ViewMode:         ViewChat,
		TransitionOrigin: DefaultTransitionOrigin,
	}
}

func (r *Registry) Session() Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

func (r *Registry) SetViewMode(mode ViewMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.ViewMode = mode
}

func (r *Registry) SetSelectedModel(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.SelectedModel = modelID
}

func (r *Registry) SetAPIKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.APIKey = key
}

func (r *Registry) SetLoading(loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Loading = loading
}

// TryStartLoading sets the loading flag unless it is already set and reports
// whether it did.
func (r *Registry) TryStartLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Loading {
		return false
	}
	r.session.Loading = true
	return true
}

// SetError sets the transient error message. An empty string clears it.
func (r *Registry) SetError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.Error = message
}

func (r *Registry) SetTransitionOrigin(origin conversation.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.TransitionOrigin = origin
}
