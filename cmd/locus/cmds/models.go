package cmds

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewModelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "model <id>",
		Short: "Select the model used for the next messages",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(_ context.Context, cmd *cobra.Command, app *App, args []string) error {
			id := args[0]
			if _, ok := app.Catalog.Get(id); !ok {
				log.Warn().Str("model", id).Msg("model is not in the catalog, it is sent as is")
			}
			app.Registry.SetSelectedModel(id)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "selected model: %s\n", id)
			return err
		}),
	}
}
