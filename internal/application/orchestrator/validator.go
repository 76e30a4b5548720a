package orchestrator

import (
	"fmt"

	"github.com/aescanero/varflow/internal/application/depgraph"
	"github.com/aescanero/varflow/pkg/domain"
)

// Validator validates variable sets before a session accepts them
type Validator struct{}

// NewValidator creates a new variable set validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every variable and the references between them, and
// returns the dependency graph of the set.
func (v *Validator) Validate(configs []domain.VariableConfig, initial domain.InitialValues) (*depgraph.Graph, error) {
	for i := range configs {
		if err := v.validateVariable(&configs[i]); err != nil {
			return nil, fmt.Errorf("invalid variable %s: %w", configs[i].Name, err)
		}
	}

	// Duplicate names and cycles
	graph, err := depgraph.Build(configs)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	// Encoded filter values must decode
	for _, cfg := range configs {
		raw := initial[cfg.Name]
		if cfg.Kind != domain.KindDynamicFilters || len(raw) == 0 {
			continue
		}
		if _, err := domain.DecodeFilters(raw[0]); err != nil {
			return nil, fmt.Errorf("invalid initial value for %s: %w", cfg.Name, err)
		}
	}

	return graph, nil
}

// validateVariable validates a single variable
func (v *Validator) validateVariable(cfg *domain.VariableConfig) error {
	// Validate using the variable's own Validate method
	return cfg.Validate()
}
