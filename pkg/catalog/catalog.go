// Package catalog is the read-only model catalog: descriptive metadata and
// the capability flags used to substitute a model when the requested response
// mode is not supported.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/locus/pkg/conversation"
)

//go:embed models.yaml
var defaultModels []byte

type Category string

const (
	CategorySOTA   Category = "sota"
	CategoryBudget Category = "budget"
)

// Pricing is in dollars per million tokens.
type Pricing struct {
	Prompt     float64 `yaml:"prompt" json:"prompt"`
	Completion float64 `yaml:"completion" json:"completion"`
}

type Model struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	Provider          string   `yaml:"provider" json:"provider"`
	Category          Category `yaml:"category" json:"category"`
	Color             string   `yaml:"color" json:"color"`
	Pricing           Pricing  `yaml:"pricing" json:"pricing"`
	ContextLength     int      `yaml:"context_length" json:"contextLength"`
	Description       string   `yaml:"description" json:"description"`
	SupportsThinking  bool     `yaml:"supports_thinking" json:"supportsThinking"`
	SupportsWebSearch bool     `yaml:"supports_web_search" json:"supportsWebSearch"`
}

// Supports reports whether the model can serve the given mode. Every model
// serves the standard mode.
func (m Model) Supports(mode conversation.Mode) bool {
	switch mode {
	case conversation.ModeDeepThink:
		return m.SupportsThinking
	case conversation.ModeWebSearch:
		return m.SupportsWebSearch
	default:
		return true
	}
}

// Catalog is an ordered list of models; the first one is the default.
type Catalog struct {
	models []Model
	byID   map[string]int
}

type catalogFile struct {
	Models []Model `yaml:"models"`
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultModels)
	if err != nil {
		panic(fmt.Sprintf("embedded model catalog is invalid: %v", err))
	}
	return c
}

func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open catalog %s", path)
	}
	defer func() {
		_ = f.Close()
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read catalog %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "could not parse catalog")
	}
	return New(file.Models...)
}

func New(models ...Model) (*Catalog, error) {
	if len(models) == 0 {
		return nil, errors.New("catalog has no models")
	}
	ret := &Catalog{byID: map[string]int{}}
	for _, m := range models {
		if m.ID == "" {
			return nil, errors.Errorf("model %q has no id", m.Name)
		}
		if _, ok := ret.byID[m.ID]; ok {
			return nil, errors.Errorf("duplicate model id %s", m.ID)
		}
		ret.byID[m.ID] = len(ret.models)
		ret.models = append(ret.models, m)
	}
	return ret, nil
}

func (c *Catalog) Models() []Model {
	return append([]Model(nil), c.models...)
}

func (c *Catalog) DefaultModel() Model {
	return c.models[0]
}

func (c *Catalog) Get(id string) (Model, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Model{}, false
	}
	return c.models[idx], true
}

// Resolve returns the model with the given id, or the default model.
func (c *Catalog) Resolve(id string) Model {
	if m, ok := c.Get(id); ok {
		return m
	}
	return c.DefaultModel()
}

// OptimalModel keeps current when it supports mode, otherwise picks the first
// model that does, falling back to the default model. In the standard mode
// current is returned as is, even when the catalog does not list it; such a
// model only carries its id.
func (c *Catalog) OptimalModel(mode conversation.Mode, current string) Model {
	model, ok := c.Get(current)
	if !ok {
		model = Model{ID: current}
	}
	if current != "" && model.Supports(mode) {
		return model
	}
	for _, m := range c.models {
		if m.Supports(mode) {
			return m
		}
	}
	return c.DefaultModel()
}

// ByCategory returns the models of one category in catalog order.
func (c *Catalog) ByCategory(category Category) []Model {
	var ret []Model
	for _, m := range c.models {
		if m.Category == category {
			ret = append(ret, m)
		}
	}
	return ret
}

func FormatPrice(pricePerMillion float64) string {
	return fmt.Sprintf("$%.2f/M", pricePerMillion)
}
