package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/locus/pkg/catalog"
	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/projection"
	"github.com/go-go-golems/locus/pkg/registry"
)

type ListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = &ListCommand{}

func NewListCommand() (*ListCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List conversations, most recently updated first"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	return withApp(ctx, func(app *App) error {
		return addConversationRows(ctx, gp, app.Registry.List())
	})
}

func addConversationRows(ctx context.Context, gp middlewares.Processor, summaries []registry.Summary) error {
	for _, s := range summaries {
		row := types.NewRow(
			types.MRP("id", s.ID.String()),
			types.MRP("short", short(s.ID)),
			types.MRP("title", s.Title),
			types.MRP("nodes", s.NodeCount),
			types.MRP("active", s.Active),
			types.MRP("created_at", s.CreatedAt),
			types.MRP("updated_at", s.UpdatedAt),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type ModelsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = &ModelsCommand{}

func NewModelsCommand() (*ModelsCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ModelsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"models",
			cmds.WithShort("List the model catalog"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	return withApp(ctx, func(app *App) error {
		selected := app.Registry.Session().SelectedModel
		if _, ok := app.Catalog.Get(selected); !ok {
			log.Warn().Str("model", selected).Msg("selected model is not in the catalog, it is sent as is")
		}
		return addModelRows(ctx, gp, app.Catalog, selected)
	})
}

func addModelRows(ctx context.Context, gp middlewares.Processor, cat *catalog.Catalog, selected string) error {
	for _, m := range cat.Models() {
		row := types.NewRow(
			types.MRP("id", m.ID),
			types.MRP("name", m.Name),
			types.MRP("provider", m.Provider),
			types.MRP("category", string(m.Category)),
			types.MRP("prompt", catalog.FormatPrice(m.Pricing.Prompt)),
			types.MRP("completion", catalog.FormatPrice(m.Pricing.Completion)),
			types.MRP("context_length", m.ContextLength),
			types.MRP("thinking", m.SupportsThinking),
			types.MRP("web_search", m.SupportsWebSearch),
			types.MRP("selected", m.ID == selected),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type BranchesCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = &BranchesCommand{}

func NewBranchesCommand() (*BranchesCommand, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &BranchesCommand{
		CommandDescription: cmds.NewCommandDescription(
			"branches",
			cmds.WithShort("List the branches forked from messages of the current node"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *BranchesCommand) RunIntoGlazeProcessor(ctx context.Context, _ *layers.ParsedLayers, gp middlewares.Processor) error {
	return withApp(ctx, func(app *App) error {
		if _, err := activeConversation(app.Registry); err != nil {
			return err
		}
		return addBranchRows(ctx, gp, app.Registry.CurrentMessages(), app.Registry.Branches())
	})
}

// addBranchRows emits one row per branch, in message order.
func addBranchRows(ctx context.Context, gp middlewares.Processor, messages conversation.Messages, index projection.BranchIndex) error {
	for _, m := range messages {
		for _, ref := range index[m.ID] {
			row := types.NewRow(
				types.MRP("message_id", m.ID.String()),
				types.MRP("role", string(m.Role)),
				types.MRP("preview", preview(m.Content)),
				types.MRP("node_id", ref.NodeID.String()),
				types.MRP("title", ref.Title),
			)
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
	}
	return nil
}
