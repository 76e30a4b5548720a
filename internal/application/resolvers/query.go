package resolvers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/internal/application/tokens"
	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

const (
	// DefaultSize is the number of distinct values fetched when
	// max_record_size is unset.
	DefaultSize = 10

	// BlankLabel is shown for an explicitly empty value.
	BlankLabel = "<blank>"
)

// BuildQuery renders the query of qd with resolved references substituted.
// It returns the referenced names that cannot be substituted yet.
func BuildQuery(qd *domain.QueryData, known map[string]bool, resolved map[string]*domain.Variable) (string, []string) {
	stream, unresolved := tokens.Substitute(qd.Stream, known, lookupFor(resolved))
	query := fmt.Sprintf(`SELECT * FROM "%s"`, stream)

	preds := make([]string, 0, len(qd.Filter))
	for _, f := range qd.Filter {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		name, missingName := tokens.Substitute(f.Name, known, literalLookup(resolved))
		values, missingValue := filterValues(f.Value, known, resolved)
		unresolved = append(append(unresolved, missingName...), missingValue...)
		preds = append(preds, predicate(name, f.Operator, values))
	}

	if len(preds) > 0 {
		query += " WHERE " + strings.Join(preds, " AND ")
	}
	return query, unresolved
}

// filterValues returns the literals a filter value stands for. A value that
// is exactly one reference takes the referenced selection, one literal per
// selected item. Any other value is a single literal with references
// substituted inline.
func filterValues(value string, known map[string]bool, resolved map[string]*domain.Variable) ([]string, []string) {
	if name, ok := tokens.Single(value); ok && known[name] {
		v, ok := resolved[name]
		if !ok || v.State != domain.StateResolved {
			return []string{value}, []string{name}
		}
		return append([]string{}, v.Value.Items...), nil
	}

	literal, missing := tokens.Substitute(value, known, literalLookup(resolved))
	return []string{literal}, missing
}

// predicate renders one filter over values. List operators always take a
// list. A sequence under = or != becomes IN or NOT IN; under any other
// operator it becomes one comparison per item.
func predicate(name, operator string, values []string) string {
	if len(values) == 0 {
		values = []string{""}
	}

	op := strings.ToUpper(strings.TrimSpace(operator))
	switch op {
	case "IN", "NOT IN":
		return fmt.Sprintf("%s %s (%s)", name, op, tokens.QuoteList(values))
	case "", "=", "==":
		if len(values) > 1 {
			return fmt.Sprintf("%s IN (%s)", name, tokens.QuoteList(values))
		}
		return name + "=" + tokens.Quote(values[0])
	case "!=", "<>":
		if len(values) > 1 {
			return fmt.Sprintf("%s NOT IN (%s)", name, tokens.QuoteList(values))
		}
		return name + op + tokens.Quote(values[0])
	case "LIKE", "NOT LIKE":
		return compareEach(values, func(v string) string {
			return fmt.Sprintf("%s %s %s", name, op, tokens.Quote(v))
		}, op == "LIKE")
	default:
		return compareEach(values, func(v string) string {
			return name + strings.TrimSpace(operator) + tokens.Quote(v)
		}, true)
	}
}

// compareEach renders one comparison per value, joined with OR when any
// match suffices and with AND otherwise.
func compareEach(values []string, render func(string) string, either bool) string {
	if len(values) == 1 {
		return render(values[0])
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = render(v)
	}
	joiner := " AND "
	if either {
		joiner = " OR "
	}
	return "(" + strings.Join(parts, joiner) + ")"
}

type queryValuesResolver struct {
	fetcher ports.FieldValuesFetcher
	logger  *zap.Logger
}

// Load substitutes resolved siblings into the template, fetches the target
// field's distinct values and reconciles the selection.
func (r *queryValuesResolver) Load(ctx context.Context, req *Request) (*Result, error) {
	cfg := req.Variable.Config
	qd := cfg.QueryData
	if qd == nil {
		return nil, fmt.Errorf("%w: query_data is required for variable %s", domain.ErrInvalidConfig, cfg.Name)
	}

	lookup := lookupFor(req.Resolved)
	stream, missingStream := tokens.Substitute(qd.Stream, req.Known, lookup)
	field, missingField := tokens.Substitute(qd.Field, req.Known, lookup)
	query, missingQuery := BuildQuery(qd, req.Known, req.Resolved)

	unresolved := append(append(missingStream, missingField...), missingQuery...)
	if len(unresolved) > 0 {
		return nil, unresolvedError(cfg.Name, unresolved)
	}

	size := qd.MaxRecordSize
	if size <= 0 {
		size = DefaultSize
	}

	fetchReq := &domain.FieldValuesRequest{
		Stream:       stream,
		StreamType:   qd.StreamType,
		Fields:       []string{field},
		TimeRange:    req.TimeRange,
		QueryContext: query,
		Size:         size,
		TraceID:      uuid.New().String(),
	}

	r.logger.Debug("fetching field values",
		zap.String("session_id", req.SessionID),
		zap.String("variable", cfg.Name),
		zap.String("stream", stream),
		zap.String("field", field),
		zap.String("query", query),
		zap.String("trace_id", fetchReq.TraceID))

	start := time.Now()
	rows, err := r.fetcher.FetchFieldValues(ctx, fetchReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch values for %s: %w", cfg.Name, err)
	}

	options := optionsFor(rows, field)

	r.logger.Debug("field values fetched",
		zap.String("session_id", req.SessionID),
		zap.String("variable", cfg.Name),
		zap.Int("options", len(options)),
		zap.Duration("duration", time.Since(start)),
		zap.String("trace_id", fetchReq.TraceID))

	return &Result{
		Options: options,
		Value:   Reconcile(options, req.OldValue, cfg.MultiSelect, cfg.Policy()),
	}, nil
}

// optionsFor maps the row of field into options.
func optionsFor(rows []domain.FieldValues, field string) []domain.Option {
	options := []domain.Option{}
	for _, row := range rows {
		if row.Field != field {
			continue
		}
		for _, v := range row.Values {
			label := v.Key
			if label == "" {
				label = BlankLabel
			}
			options = append(options, domain.Option{Label: label, Value: v.Key})
		}
		break
	}
	return options
}
