package cmds

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/locus/pkg/chat"
	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/events"
	"github.com/go-go-golems/locus/pkg/helpers"
	"github.com/go-go-golems/locus/pkg/reply"
	"github.com/go-go-golems/locus/pkg/reply/ollama"
	"github.com/go-go-golems/locus/pkg/reply/openrouter"
)

func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message on the current node and stream the reply",
		Long:  "Send commits the message to the current node and streams the reply. Ctrl-C stops the stream and keeps what was received.",
		Args:  cobra.MinimumNArgs(1),
		RunE: RunE(func(ctx context.Context, cmd *cobra.Command, app *App, args []string) error {
			modeFlag, _ := cmd.Flags().GetString("mode")
			mode, err := conversation.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			if model, _ := cmd.Flags().GetString("model"); model != "" {
				app.Registry.SetSelectedModel(model)
			}

			source, options, err := OpenSource()
			if err != nil {
				return err
			}
			_, err = sendAndPrint(ctx, cmd, app, source, strings.Join(args, " "), mode, options...)
			return err
		}),
	}
	cmd.Flags().String("mode", string(conversation.ModeStandard), "Mode: standard, deepThink or webSearch")
	cmd.Flags().String("model", "", "Select a model before sending")
	return cmd
}

const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// OpenSource builds the reply source named by the provider setting. Ollama
// runs locally and needs no API key.
func OpenSource() (reply.Source, []chat.Option, error) {
	switch provider := viper.GetString("provider"); provider {
	case ProviderOpenRouter, "":
		return openrouter.New(openrouter.WithBaseURL(viper.GetString("base-url"))), nil, nil
	case ProviderOllama:
		source, err := ollama.NewFromEnvironment(ollama.WithOptions(viper.GetStringMap("ollama-options")))
		if err != nil {
			return nil, nil, err
		}
		return source, []chat.Option{chat.WithAPIKeyRequired(false)}, nil
	default:
		return nil, nil, errors.Errorf("unknown provider %q (expected openrouter or ollama)", provider)
	}
}

// sendAndPrint runs the event router and the exchange side by side, printing
// the streamed reply as it arrives.
func sendAndPrint(
	ctx context.Context,
	cmd *cobra.Command,
	app *App,
	source reply.Source,
	text string,
	mode conversation.Mode,
	options ...chat.Option,
) (*chat.Result, error) {
	router, err := events.NewEventRouter(
		events.WithLogger(helpers.NewWatermill(log.Logger)),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = router.Close()
	}()
	router.AddHandler("printer", events.ChatTopic, events.StepPrinterFunc(string(conversation.RoleAssistant), cmd.OutOrStdout()))

	pm := events.NewPublisherManager()
	pm.RegisterPublisher(events.ChatTopic, router.Publisher)
	options = append([]chat.Option{chat.WithPublisher(pm)}, options...)
	controller := chat.NewController(app.Registry, app.Catalog, source, options...)

	// the stream is stopped on interrupt, the router only once the stream is done
	streamCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result *chat.Result
	eg := errgroup.Group{}
	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		var err error
		result, err = controller.Send(streamCtx, text, mode)
		return err
	})

	err = eg.Wait()
	return result, err
}
