package cmds

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/locus/pkg/persistence"
)

func NewNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation and make it active",
		Args:  cobra.NoArgs,
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, _ []string) error {
			id := app.Registry.CreateConversation()
			_, err := fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return err
		}),
	}
}

func NewSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <conversation>",
		Short: "Make a conversation active",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id, err := resolveConversation(app.Registry, args[0])
			if err != nil {
				return err
			}
			return app.Registry.SelectConversation(id)
		}),
	}
}

func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id, err := resolveConversation(app.Registry, args[0])
			if err != nil {
				return err
			}
			if err := app.Registry.DeleteConversation(id); err != nil {
				return err
			}
			active := app.Registry.ActiveID()
			if active.IsNull() {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no conversation left")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "active conversation: %s\n", short(active))
			return err
		}),
	}
}

func NewKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "key [credential]",
		Short: "Store the OpenRouter API key, or clear it when called without argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			app.Registry.SetAPIKey(key)
			// an explicit key replaces the configured override when saving
			app.apiKeyOverride = ""
			if key == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "API key cleared")
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
			return err
		}),
	}
}

func NewExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [conversation]",
		Short: "Export a conversation (the active one by default) as JSON, YAML or markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			c := app.Registry.Active()
			if len(args) == 1 {
				id, err := resolveConversation(app.Registry, args[0])
				if err != nil {
					return err
				}
				c, _ = app.Registry.Conversation(id)
			}
			if c == nil {
				return errors.New("no conversation to export")
			}

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = viper.GetString("export-dir")
			}
			format, _ := cmd.Flags().GetString("format")
			if format == "" {
				format = viper.GetString("export-format")
			}
			options := []persistence.ExporterOption{}
			if tpl, _ := cmd.Flags().GetString("template"); tpl != "" {
				options = append(options, persistence.WithPathTemplate(tpl))
			}

			exporter, err := persistence.NewExporter(dir, options...)
			if err != nil {
				return err
			}
			path, err := exporter.Export(c, parseFormat(format))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		}),
	}
	cmd.Flags().String("dir", "", "Export directory (default: export-dir setting)")
	cmd.Flags().String("format", "", "Export format: json, yaml or md (default: export-format setting)")
	cmd.Flags().String("template", "", "Path template, relative to the export directory")
	return cmd
}

func parseFormat(s string) persistence.Format {
	switch s {
	case "yaml", "yml":
		return persistence.FormatYAML
	case "md", "markdown":
		return persistence.FormatMarkdown
	default:
		return persistence.FormatJSON
	}
}

func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON or YAML transcript ([{role, content}]) as a new conversation",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			entries, err := persistence.LoadTranscript(args[0])
			if err != nil {
				return err
			}
			c, err := persistence.BuildConversation(entries, time.Now().UTC().Truncate(time.Millisecond))
			if err != nil {
				return err
			}
			if err := app.Registry.AddConversation(c); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  (%d messages)\n", c.ID, c.Title, len(entries))
			return err
		}),
	}
}
