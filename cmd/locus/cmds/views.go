package cmds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/locus/pkg/chat"
	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/persistence"
	"github.com/go-go-golems/locus/pkg/projection"
	"github.com/go-go-golems/locus/pkg/registry"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the messages of the current node",
		Args:  cobra.NoArgs,
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, _ []string) error {
			c, err := activeConversation(app.Registry)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if render, _ := cmd.Flags().GetBool("render"); render {
				return renderMarkdown(w, c)
			}
			return showMessages(w, app.Registry, DefaultStyles(w), chat.NewTiktokenCounter())
		}),
	}
	cmd.Flags().Bool("render", false, "Render the transcript as markdown")
	return cmd
}

// renderMarkdown styles the transcript with glamour when w is a terminal and
// writes the plain markdown otherwise.
func renderMarkdown(w io.Writer, c *conversation.Conversation) error {
	var buf bytes.Buffer
	if err := persistence.WriteMarkdown(&buf, c); err != nil {
		return err
	}
	if !isTerminal(w) {
		_, err := w.Write(buf.Bytes())
		return err
	}
	styled, err := glamour.Render(buf.String(), "dark")
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, styled)
	return err
}

func showMessages(w io.Writer, r *registry.Registry, style *Style, counter chat.TokenCounter) error {
	c := r.Active()
	node := r.CurrentNode()
	if c == nil || node == nil {
		return registry.ErrNoActiveConversation
	}

	if _, err := fmt.Fprintf(w, "%s\n%s  %s\n\n", style.Title.Render(c.Title), short(node.ID), node.Title); err != nil {
		return err
	}

	messages := r.CurrentMessages()
	branches := r.Branches()
	divider := projection.InheritedDividerIndex(c)
	parent := r.ParentNode()

	for i, m := range messages {
		header := style.Role.Render(string(m.Role))
		if m.ModelID != "" {
			header += style.Dim.Render(" (" + m.ModelID + ")")
		}
		if _, err := fmt.Fprintf(w, "[%s] %s\n%s\n", short(m.ID), header, m.Content); err != nil {
			return err
		}
		if m.Thinking != "" {
			if _, err := fmt.Fprintf(w, "%s\n", style.Dim.Render("thinking: "+m.Thinking)); err != nil {
				return err
			}
		}
		for j, s := range m.Sources {
			if _, err := fmt.Fprintf(w, "  [%d] %s <%s>\n", j+1, s.Title, s.URL); err != nil {
				return err
			}
		}
		for _, b := range branches[m.ID] {
			if _, err := fmt.Fprintf(w, "  %s\n", style.Ancestor.Render("⑂ "+short(b.NodeID)+" "+b.Title)); err != nil {
				return err
			}
		}
		if i == divider && parent != nil && i < len(messages)-1 {
			line := fmt.Sprintf("── above: inherited from %s ──", parent.Title)
			if _, err := fmt.Fprintf(w, "%s\n", style.Dim.Render(line)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if tokens := chat.EstimateHistory(counter, r.History()); tokens >= 0 {
		if _, err := fmt.Fprintf(w, "%s\n", style.Dim.Render(fmt.Sprintf("%d messages, ~%d tokens", len(messages), tokens))); err != nil {
			return err
		}
	}
	if msg := r.Session().Error; msg != "" {
		if _, err := fmt.Fprintf(w, "%s\n", style.Error.Render(msg)); err != nil {
			return err
		}
	}
	return nil
}

func NewTreeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the node tree of the active conversation",
		Args:  cobra.NoArgs,
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, _ []string) error {
			c, err := activeConversation(app.Registry)
			if err != nil {
				return err
			}
			return renderTree(cmd.OutOrStdout(), app.Registry.Tree(projection.TreeSpacing), projection.ActivePath(c), DefaultStyles(cmd.OutOrStdout()))
		}),
	}
}

func renderTree(w io.Writer, view projection.TreeView, path map[conversation.NodeID]bool, style *Style) error {
	for _, n := range view.Nodes {
		indent := ""
		if n.Depth > 0 {
			indent = strings.Repeat("   ", n.Depth-1) + "└─ "
		}
		marker, s := "○", style.OffPath
		switch {
		case n.Active:
			marker, s = "◉", style.Current
		case path[n.ID]:
			marker, s = "●", style.Ancestor
		}
		label := fmt.Sprintf("%s %s %s (%d)", marker, short(n.ID), n.Title, n.MessageCount)
		line := fmt.Sprintf("%s%s %s", indent, s.Render(label),
			style.Dim.Render(fmt.Sprintf("%s  @%.0f,%.0f", n.Preview, n.Position.X, n.Position.Y)))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func NewMinimapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "minimap",
		Short: "Draw a compact map of the active conversation",
		Args:  cobra.NoArgs,
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, _ []string) error {
			if _, err := activeConversation(app.Registry); err != nil {
				return err
			}
			return renderMinimap(cmd.OutOrStdout(), app.Registry.Minimap(projection.MinimapSpacing), projection.MinimapSpacing, DefaultStyles(cmd.OutOrStdout()))
		}),
	}
}

// renderMinimap draws one text row per depth, with two columns per sibling
// slot.
func renderMinimap(w io.Writer, m projection.Minimap, spacing projection.Spacing, style *Style) error {
	if len(m.Nodes) == 0 {
		return nil
	}
	step := spacing.Horizontal / 2
	type cell struct {
		col   int
		state projection.NodeState
	}
	rows := map[int][]cell{}
	maxDepth := 0
	for _, n := range m.Nodes {
		col := int(math.Round((n.X - m.MinX) / step))
		rows[n.Depth] = append(rows[n.Depth], cell{col: col, state: n.State})
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}

	for depth := 0; depth <= maxDepth; depth++ {
		var sb strings.Builder
		pos := 0
		for _, c := range rows[depth] {
			if c.col > pos {
				sb.WriteString(strings.Repeat(" ", c.col-pos))
				pos = c.col
			}
			if c.col < pos {
				continue
			}
			switch c.state {
			case projection.NodeCurrent:
				sb.WriteString(style.Current.Render("◉"))
			case projection.NodeAncestor:
				sb.WriteString(style.Ancestor.Render("●"))
			default:
				sb.WriteString(style.OffPath.Render("○"))
			}
			pos++
		}
		if _, err := fmt.Fprintln(w, sb.String()); err != nil {
			return err
		}
	}

	for _, n := range m.Nodes {
		if n.State != projection.NodeCurrent {
			continue
		}
		models := strings.Join(n.Models, ", ")
		if n.ExtraModels > 0 {
			models += fmt.Sprintf(" +%d", n.ExtraModels)
		}
		_, err := fmt.Fprintf(w, "\n%s depth %d, %d siblings, %d children  %s\n",
			style.Current.Render(n.Title), n.Depth, n.SiblingCount, n.ChildCount, style.Dim.Render(models))
		return err
	}
	return nil
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return s
}
