package resolvers

import (
	"context"

	"github.com/aescanero/varflow/internal/application/tokens"
	"github.com/aescanero/varflow/pkg/domain"
)

type constantResolver struct{}

// Load returns the configured value.
func (constantResolver) Load(_ context.Context, req *Request) (*Result, error) {
	cfg := req.Variable.Config
	if cfg.MultiSelect {
		return &Result{Value: domain.ListValue(cfg.Value)}, nil
	}
	return &Result{Value: domain.ScalarValue(cfg.Value)}, nil
}

type textboxResolver struct{}

// Load keeps the user's text, falling back to the configured default.
func (textboxResolver) Load(_ context.Context, req *Request) (*Result, error) {
	if len(req.OldValue) > 0 {
		return &Result{Value: domain.ScalarValue(req.OldValue[0])}, nil
	}
	return &Result{Value: domain.ScalarValue(req.Variable.Config.Value)}, nil
}

type dynamicFiltersResolver struct{}

// Load keeps the current filter list.
func (dynamicFiltersResolver) Load(_ context.Context, req *Request) (*Result, error) {
	filters := append([]domain.Filter{}, req.Variable.Value.Filters...)
	return &Result{Value: domain.Value{Filters: filters}}, nil
}

type customResolver struct{}

// Load substitutes references in the configured options and reconciles the
// selection. Options flagged selected stand in for a missing old value.
func (r *customResolver) Load(_ context.Context, req *Request) (*Result, error) {
	cfg := req.Variable.Config
	lookup := lookupFor(req.Resolved)

	var unresolved []string
	options := make([]domain.Option, 0, len(cfg.Options))
	var selected []string

	for _, o := range cfg.Options {
		label, missingLabel := tokens.Substitute(o.Label, req.Known, lookup)
		value, missingValue := tokens.Substitute(o.Value, req.Known, lookup)
		unresolved = append(unresolved, missingLabel...)
		unresolved = append(unresolved, missingValue...)

		if label == "" {
			label = value
		}
		options = append(options, domain.Option{Label: label, Value: value})
		if o.Selected {
			selected = append(selected, value)
		}
	}

	if len(unresolved) > 0 {
		return nil, unresolvedError(cfg.Name, unresolved)
	}

	old := req.OldValue
	if len(old) == 0 {
		old = selected
	}

	return &Result{
		Options: options,
		Value:   Reconcile(options, old, cfg.MultiSelect, cfg.Policy()),
	}, nil
}
