// Package depgraph derives the parent/child relation between variables from
// the references inside their templates.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/varflow/internal/application/tokens"
	"github.com/aescanero/varflow/pkg/domain"
)

// ErrCycle is returned when variable references form a cycle.
var ErrCycle = errors.New("dependency cycle detected")

// Graph holds parent and child adjacency keyed by variable name.
type Graph struct {
	order    []string
	parents  map[string]map[string]struct{}
	children map[string]map[string]struct{}
}

// Build scans every variable's template fields for references to other
// configured variables and returns the resulting graph. Self references and
// longer cycles are rejected.
func Build(configs []domain.VariableConfig) (*Graph, error) {
	g := &Graph{
		order:    make([]string, 0, len(configs)),
		parents:  make(map[string]map[string]struct{}, len(configs)),
		children: make(map[string]map[string]struct{}, len(configs)),
	}

	for _, cfg := range configs {
		if _, exists := g.parents[cfg.Name]; exists {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateVariable, cfg.Name)
		}
		g.order = append(g.order, cfg.Name)
		g.parents[cfg.Name] = make(map[string]struct{})
		g.children[cfg.Name] = make(map[string]struct{})
	}

	for _, cfg := range configs {
		for _, ref := range tokens.References(TemplateText(cfg)) {
			if _, known := g.parents[ref]; !known {
				continue
			}
			if ref == cfg.Name {
				return nil, fmt.Errorf("%w: variable '%s' references itself", ErrCycle, cfg.Name)
			}
			g.parents[cfg.Name][ref] = struct{}{}
			g.children[ref][cfg.Name] = struct{}{}
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	return g, nil
}

// TemplateText concatenates every field of cfg that may carry references.
// Only query_values and custom variables can reference others.
func TemplateText(cfg domain.VariableConfig) string {
	var b strings.Builder
	switch cfg.Kind {
	case domain.KindQueryValues:
		if cfg.QueryData == nil {
			return ""
		}
		b.WriteString(cfg.QueryData.Stream)
		b.WriteByte('\n')
		b.WriteString(cfg.QueryData.Field)
		for _, f := range cfg.QueryData.Filter {
			b.WriteByte('\n')
			b.WriteString(f.Name)
			b.WriteByte('\n')
			b.WriteString(f.Value)
		}
	case domain.KindCustom:
		for _, o := range cfg.Options {
			b.WriteByte('\n')
			b.WriteString(o.Label)
			b.WriteByte('\n')
			b.WriteString(o.Value)
		}
	}
	return b.String()
}

// detectCycles runs a DFS with visiting/visited marks over the children
// adjacency and reports the first cycle found.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		visiting[name] = true
		path = append(path, name)

		for _, child := range sortedKeys(g.children[name]) {
			if visiting[child] {
				start := 0
				for i, p := range path {
					if p == child {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), child)
				return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
			}
			if visited[child] {
				continue
			}
			if err := visit(child); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		visiting[name] = false
		visited[name] = true
		return nil
	}

	for _, name := range g.order {
		if visited[name] {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// Names returns every variable name in configuration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.order...)
}

// Parents returns the direct parents of name, sorted.
func (g *Graph) Parents(name string) []string {
	return sortedKeys(g.parents[name])
}

// Children returns the direct children of name, sorted.
func (g *Graph) Children(name string) []string {
	return sortedKeys(g.children[name])
}

// Descendants returns the transitive children of name in breadth-first
// order, excluding name itself.
func (g *Graph) Descendants(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	queue := []string{name}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range sortedKeys(g.children[current]) {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Roots returns the variables without parents in configuration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, name := range g.order {
		if len(g.parents[name]) == 0 {
			roots = append(roots, name)
		}
	}
	return roots
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
