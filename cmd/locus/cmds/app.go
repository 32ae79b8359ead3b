// Package cmds holds the locus subcommands. Every command opens the
// configured store, restores a registry from it, runs, and saves the result.
package cmds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/glazed/pkg/cli"
	glazedcmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/locus/pkg/catalog"
	"github.com/go-go-golems/locus/pkg/persistence"
	"github.com/go-go-golems/locus/pkg/registry"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// SetDefaults registers the configuration defaults. Paths live below
// $HOME/.locus.
func SetDefaults() {
	base := ".locus"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".locus")
	}
	viper.SetDefault("store", StoreFile)
	viper.SetDefault("state-file", filepath.Join(base, "state.json"))
	viper.SetDefault("sqlite-path", filepath.Join(base, "locus.db"))
	viper.SetDefault("export-dir", filepath.Join(base, "exports"))
	viper.SetDefault("export-format", string(persistence.FormatJSON))
}

// App is the state a command runs against.
type App struct {
	Registry *registry.Registry
	Catalog  *catalog.Catalog
	Store    persistence.Store

	apiKeyOverride string
	persistedKey   string
}

func OpenStore() (persistence.Store, error) {
	switch kind := viper.GetString("store"); kind {
	case StoreFile, "":
		return persistence.NewFileStore(viper.GetString("state-file"))
	case StoreSQLite:
		return persistence.NewSQLiteStore(viper.GetString("sqlite-path"))
	default:
		return nil, errors.Errorf("unknown store %q (expected file or sqlite)", kind)
	}
}

func LoadCatalog() (*catalog.Catalog, error) {
	if path := viper.GetString("catalog"); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default(), nil
}

func OpenApp(ctx context.Context) (*App, error) {
	cat, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	store, err := OpenStore()
	if err != nil {
		return nil, err
	}
	r, err := registry.New()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := persistence.LoadInto(ctx, store, r); err != nil {
		_ = store.Close()
		return nil, err
	}

	ret := &App{
		Registry: r,
		Catalog:  cat,
		Store:    store,
	}
	if key := viper.GetString("api-key"); key != "" {
		ret.persistedKey = r.Session().APIKey
		ret.apiKeyOverride = key
		r.SetAPIKey(key)
	}
	return ret, nil
}

// Close saves the registry and closes the store. A credential taken from the
// configuration is not written back unless it was changed while running.
func (a *App) Close(ctx context.Context) error {
	if a.apiKeyOverride != "" && a.Registry.Session().APIKey == a.apiKeyOverride {
		a.Registry.SetAPIKey(a.persistedKey)
	}
	saveErr := persistence.SaveFrom(ctx, a.Store, a.Registry)
	if saveErr != nil {
		log.Error().Err(saveErr).Msg("could not save state")
	}
	if err := a.Store.Close(); err != nil && saveErr == nil {
		return err
	}
	return saveErr
}

// withApp runs fn between OpenApp and Close. The state is saved even when fn
// fails, since a failed send still commits the user message.
func withApp(ctx context.Context, fn func(app *App) error) error {
	app, err := OpenApp(ctx)
	if err != nil {
		return err
	}
	runErr := fn(app)
	if err := app.Close(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// RunE wraps a command body with withApp.
func RunE(fn func(ctx context.Context, cmd *cobra.Command, app *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return withApp(ctx, func(app *App) error {
			return fn(ctx, cmd, app, args)
		})
	}
}

// AddCommands registers every locus subcommand on root. The listing commands
// are glazed commands and accept the glazed output flags.
func AddCommands(root *cobra.Command) {
	listCommand, err := NewListCommand()
	cobra.CheckErr(err)
	modelsCommand, err := NewModelsCommand()
	cobra.CheckErr(err)
	branchesCommand, err := NewBranchesCommand()
	cobra.CheckErr(err)

	root.AddCommand(
		NewNewCommand(),
		mustBuildGlazeCommand(listCommand),
		NewSelectCommand(),
		NewDeleteCommand(),
		NewShowCommand(),
		NewSendCommand(),
		NewBranchCommand(),
		NewNavCommand(),
		NewBackCommand(),
		NewRollbackCommand(),
		NewTitleCommand(),
		NewMoveCommand(),
		NewTreeCommand(),
		NewMinimapCommand(),
		mustBuildGlazeCommand(branchesCommand),
		mustBuildGlazeCommand(modelsCommand),
		NewModelCommand(),
		NewKeyCommand(),
		NewExportCommand(),
		NewImportCommand(),
	)
}

func mustBuildGlazeCommand(command glazedcmds.GlazeCommand) *cobra.Command {
	ret, err := cli.BuildCobraCommandFromGlazeCommand(command)
	cobra.CheckErr(err)
	return ret
}
