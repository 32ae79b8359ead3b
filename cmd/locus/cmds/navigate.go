package cmds

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/locus/pkg/conversation"
)

// printCurrent reports where the current pointer ended up.
func printCurrent(cmd *cobra.Command, app *App) error {
	n := app.Registry.CurrentNode()
	if n == nil {
		return nil
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "current node: %s  %s  (%d messages)\n",
		short(n.ID), n.Title, len(n.Messages))
	return err
}

func NewBranchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Fork the current node at a message, or fork a whole node",
		Args:  cobra.NoArgs,
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, _ []string) error {
			messageRef, _ := cmd.Flags().GetString("message")
			nodeRef, _ := cmd.Flags().GetString("node")
			switch {
			case messageRef != "" && nodeRef != "":
				return errors.New("use either --message or --node")
			case messageRef != "":
				id, err := resolveMessage(app.Registry, messageRef)
				if err != nil {
					return err
				}
				if err := app.Registry.BranchFromMessage(id); err != nil {
					return err
				}
			case nodeRef != "":
				id, err := resolveNode(app.Registry, nodeRef)
				if err != nil {
					return err
				}
				if err := app.Registry.BranchFromNode(id); err != nil {
					return err
				}
			default:
				return errors.New("one of --message or --node is required")
			}
			return printCurrent(cmd, app)
		}),
	}
	cmd.Flags().String("message", "", "Message of the current node to branch from")
	cmd.Flags().String("node", "", "Node whose whole history is copied into the branch")
	return cmd
}

func parsePosition(s string) (conversation.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return conversation.Position{}, errors.Errorf("expected x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return conversation.Position{}, errors.Wrapf(err, "invalid x in %q", s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return conversation.Position{}, errors.Wrapf(err, "invalid y in %q", s)
	}
	return conversation.Position{X: x, Y: y}, nil
}

func NewNavCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nav <node>",
		Short: "Move the current pointer to a node",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id, err := resolveNode(app.Registry, args[0])
			if err != nil {
				return err
			}
			if origin, _ := cmd.Flags().GetString("origin"); origin != "" {
				pos, err := parsePosition(origin)
				if err != nil {
					return err
				}
				err = app.Registry.NavigateToNodeWithOrigin(id, pos)
				if err != nil {
					return err
				}
			} else if err := app.Registry.NavigateToNode(id); err != nil {
				return err
			}
			return printCurrent(cmd, app)
		}),
	}
	cmd.Flags().String("origin", "", "Transition origin as x,y percentages")
	return cmd
}

func NewBackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "back [steps]",
		Short: "Remove the last messages of the current node",
		Long: "Back removes the last <steps> messages of the current node, or moves to the parent " +
			"node when the node holds no more than that. With --to, the given message becomes the last one.",
		Args: cobra.MaximumNArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			switch {
			case to != "" && len(args) > 0:
				return errors.New("use either <steps> or --to")
			case to != "":
				id, err := resolveMessage(app.Registry, to)
				if err != nil {
					return err
				}
				if err := app.Registry.BacktrackTo(id); err != nil {
					return err
				}
			case len(args) == 1:
				steps, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Wrapf(err, "invalid step count %q", args[0])
				}
				if err := app.Registry.Backtrack(steps); err != nil {
					return err
				}
			default:
				return errors.New("either <steps> or --to is required")
			}
			return printCurrent(cmd, app)
		}),
	}
	cmd.Flags().String("to", "", "Message to keep as the last one")
	return cmd
}

func NewRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <node>",
		Short: "Drop the last exchange of a node",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id, err := resolveNode(app.Registry, args[0])
			if err != nil {
				return err
			}
			if err := app.Registry.RollbackNode(id); err != nil {
				return err
			}
			n, _ := app.Registry.Active().Node(id)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "node %s now has %d messages\n", short(id), len(n.Messages))
			return err
		}),
	}
}

func NewTitleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "title <node> <title>",
		Short: "Rename a node",
		Args:  cobra.MinimumNArgs(2),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id, err := resolveNode(app.Registry, args[0])
			if err != nil {
				return err
			}
			return app.Registry.UpdateNodeTitle(id, strings.Join(args[1:], " "))
		}),
	}
}

func NewMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <node> <x> <y>",
		Short: "Pin a node of the tree view to a position",
		Args:  cobra.ExactArgs(3),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id, err := resolveNode(app.Registry, args[0])
			if err != nil {
				return err
			}
			pos, err := parsePosition(args[1] + "," + args[2])
			if err != nil {
				return err
			}
			return app.Registry.SetNodePosition(id, pos)
		}),
	}
}
