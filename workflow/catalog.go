package workflow

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	StandardWorkflowID  = "standard_collection"
	EscalatedWorkflowID = "escalated_collection"
	UrgentWorkflowID    = "urgent_collection"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is an immutable registry of workflow definitions built once at
// startup. Definitions handed out share step slices and must not be mutated.
type Catalog struct {
	defs  map[string]Definition
	order []string
}

// DefaultCatalog decodes the embedded standard/escalated/urgent catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultCatalogYAML)
}

// LoadCatalog decodes and validates a YAML catalog document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Workflows []Definition `yaml:"workflows"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workflow: decode catalog: %w", err)
	}
	return NewCatalog(doc.Workflows...)
}

// NewCatalog builds a catalog from definitions, rejecting duplicates and
// invalid steps.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("workflow: definition missing id")
		}
		if _, dup := c.defs[def.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate definition %q", def.ID)
		}
		seen := make(map[string]struct{}, len(def.Steps))
		for _, step := range def.Steps {
			if err := step.validate(); err != nil {
				return nil, fmt.Errorf("workflow: definition %q: %w", def.ID, err)
			}
			if _, dup := seen[step.ID]; dup {
				return nil, fmt.Errorf("workflow: definition %q: duplicate step %q", def.ID, step.ID)
			}
			seen[step.ID] = struct{}{}
		}
		c.defs[def.ID] = def
		c.order = append(c.order, def.ID)
	}
	return c, nil
}

// Get returns the definition registered under id.
func (c *Catalog) Get(id string) (Definition, bool) {
	def, ok := c.defs[id]
	return def, ok
}

// List returns definitions in catalog order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

// Summaries lists every definition's Summary in catalog order.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id].Summary())
	}
	return out
}
