package resolvers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aescanero/varflow/internal/application/tokens"
	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

// ErrUnresolvedReference is returned when a template still references a
// variable that is not resolved yet. It defers the load; it is not a failure.
var ErrUnresolvedReference = errors.New("unresolved variable reference")

// Request carries everything a resolver needs for one load. Every field is a
// private copy owned by the load.
type Request struct {
	SessionID string
	Variable  *domain.Variable

	// Resolved holds the resolved variables of the session by name.
	Resolved map[string]*domain.Variable

	// Known holds every configured variable name.
	Known map[string]bool

	// OldValue is the last selection recorded for the variable.
	OldValue []string

	TimeRange domain.TimeRange
}

// Result is the outcome of a successful load.
type Result struct {
	Options []domain.Option
	Value   domain.Value
}

// Resolver computes one kind's options and value.
type Resolver interface {
	Load(ctx context.Context, req *Request) (*Result, error)
}

// Set holds one resolver per kind.
type Set struct {
	query    *queryValuesResolver
	custom   *customResolver
	constant constantResolver
	textbox  textboxResolver
	filters  dynamicFiltersResolver
}

// NewSet creates the resolver set. fetcher backs query_values variables.
func NewSet(fetcher ports.FieldValuesFetcher, logger *zap.Logger) *Set {
	return &Set{
		query:  &queryValuesResolver{fetcher: fetcher, logger: logger},
		custom: &customResolver{},
	}
}

// For returns the resolver of kind.
func (s *Set) For(kind domain.Kind) (Resolver, error) {
	switch kind {
	case domain.KindQueryValues:
		return s.query, nil
	case domain.KindCustom:
		return s.custom, nil
	case domain.KindConstant:
		return s.constant, nil
	case domain.KindTextbox:
		return s.textbox, nil
	case domain.KindDynamicFilters:
		return s.filters, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
}

// lookupFor renders resolved variables for substitution. A sequence becomes
// a list of quoted literals, a scalar is inserted with quotes escaped and a
// filter list becomes an AND-joined predicate.
func lookupFor(resolved map[string]*domain.Variable) tokens.Lookup {
	return func(name string) (string, bool) {
		v, ok := resolved[name]
		if !ok || v.State != domain.StateResolved {
			return "", false
		}

		switch {
		case v.Config.Kind == domain.KindDynamicFilters:
			preds := make([]string, 0, len(v.Value.Filters))
			for _, f := range v.Value.Filters {
				preds = append(preds, predicate(f.Name, f.Operator, []string{f.Value}))
			}
			return strings.Join(preds, " AND "), true
		case v.Config.MultiSelect:
			return tokens.QuoteList(v.Value.Items), true
		default:
			first, _ := v.Value.First()
			return tokens.Escape(first), true
		}
	}
}

// literalLookup renders resolved variables as raw text for use inside a
// literal or an identifier. A sequence is joined with commas.
func literalLookup(resolved map[string]*domain.Variable) tokens.Lookup {
	return func(name string) (string, bool) {
		v, ok := resolved[name]
		if !ok || v.State != domain.StateResolved {
			return "", false
		}
		return strings.Join(v.Value.Items, ","), true
	}
}

func unresolvedError(name string, refs []string) error {
	return fmt.Errorf("%w: %s waits on %s", ErrUnresolvedReference, name, strings.Join(dedupe(refs), ", "))
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
