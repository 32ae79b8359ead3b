package cmds

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/registry"
)

// shortIDLength is how many characters of an id the commands print.
const shortIDLength = 8

func short(id interface{ String() string }) string {
	s := id.String()
	if len(s) > shortIDLength {
		return s[:shortIDLength]
	}
	return s
}

// matchPrefix returns the one candidate starting with prefix. A full id
// always matches exactly.
func matchPrefix(kind string, prefix string, candidates []string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", errors.Errorf("empty %s id", kind)
	}
	var matches []string
	for _, c := range candidates {
		if c == prefix {
			return c, nil
		}
		if strings.HasPrefix(c, prefix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", errors.Errorf("no %s matches %q", kind, prefix)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", errors.Errorf("%s id %q is ambiguous (%d matches)", kind, prefix, len(matches))
	}
}

func resolveConversation(r *registry.Registry, prefix string) (conversation.ConversationID, error) {
	var candidates []string
	for _, s := range r.List() {
		candidates = append(candidates, s.ID.String())
	}
	id, err := matchPrefix("conversation", prefix, candidates)
	if err != nil {
		return conversation.NullConversation, err
	}
	return conversation.ParseConversationID(id)
}

func activeConversation(r *registry.Registry) (*conversation.Conversation, error) {
	c := r.Active()
	if c == nil {
		return nil, registry.ErrNoActiveConversation
	}
	return c, nil
}

func resolveNode(r *registry.Registry, prefix string) (conversation.NodeID, error) {
	c, err := activeConversation(r)
	if err != nil {
		return conversation.NullNode, err
	}
	var candidates []string
	for id := range c.Nodes {
		candidates = append(candidates, id.String())
	}
	id, err := matchPrefix("node", prefix, candidates)
	if err != nil {
		return conversation.NullNode, err
	}
	return conversation.ParseNodeID(id)
}

// resolveMessage looks among the messages of the current node.
func resolveMessage(r *registry.Registry, prefix string) (conversation.MessageID, error) {
	var candidates []string
	for _, m := range r.CurrentMessages() {
		candidates = append(candidates, m.ID.String())
	}
	id, err := matchPrefix("message", prefix, candidates)
	if err != nil {
		return conversation.NullMessage, err
	}
	return conversation.ParseMessageID(id)
}
