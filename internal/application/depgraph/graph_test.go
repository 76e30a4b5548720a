package depgraph

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/varflow/pkg/domain"
)

func queryVar(name, field string, filters ...domain.QueryFilter) domain.VariableConfig {
	return domain.VariableConfig{
		Name: name,
		Kind: domain.KindQueryValues,
		QueryData: &domain.QueryData{
			Stream:     "default",
			StreamType: "logs",
			Field:      field,
			Filter:     filters,
		},
	}
}

func TestBuild(t *testing.T) {
	t.Run("edges from filter references", func(t *testing.T) {
		g, err := Build([]domain.VariableConfig{
			queryVar("region", "region"),
			queryVar("host", "host", domain.QueryFilter{Name: "region", Operator: "=", Value: "$region"}),
			queryVar("pod", "pod", domain.QueryFilter{Name: "host", Operator: "IN", Value: "${host}"}),
		})
		require.NoError(t, err)

		assert.Empty(t, g.Parents("region"))
		assert.Equal(t, []string{"host"}, g.Children("region"))
		assert.Equal(t, []string{"region"}, g.Parents("host"))
		assert.Equal(t, []string{"host"}, g.Parents("pod"))
		assert.Equal(t, []string{"region"}, g.Roots())
		assert.Equal(t, []string{"region", "host", "pod"}, g.Names())
	})

	t.Run("custom option values can reference others", func(t *testing.T) {
		g, err := Build([]domain.VariableConfig{
			{Name: "env", Kind: domain.KindConstant, Value: "prod"},
			{Name: "target", Kind: domain.KindCustom, Options: []domain.OptionConfig{
				{Label: "primary", Value: "$env-primary"},
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"env"}, g.Parents("target"))
	})

	t.Run("references to unknown names are ignored", func(t *testing.T) {
		g, err := Build([]domain.VariableConfig{
			queryVar("host", "host", domain.QueryFilter{Name: "region", Operator: "=", Value: "$missing"}),
		})
		require.NoError(t, err)
		assert.Empty(t, g.Parents("host"))
	})

	t.Run("textbox templates are not scanned", func(t *testing.T) {
		g, err := Build([]domain.VariableConfig{
			{Name: "a", Kind: domain.KindTextbox},
			{Name: "b", Kind: domain.KindTextbox, Value: "$a"},
		})
		require.NoError(t, err)
		assert.Empty(t, g.Parents("b"))
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		_, err := Build([]domain.VariableConfig{queryVar("a", "a"), queryVar("a", "b")})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrDuplicateVariable)
	})

	t.Run("self reference is a cycle", func(t *testing.T) {
		_, err := Build([]domain.VariableConfig{
			queryVar("a", "a", domain.QueryFilter{Name: "a", Operator: "=", Value: "$a"}),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("two variable cycle is rejected", func(t *testing.T) {
		_, err := Build([]domain.VariableConfig{
			queryVar("a", "a", domain.QueryFilter{Name: "b", Operator: "=", Value: "$b"}),
			queryVar("b", "b", domain.QueryFilter{Name: "a", Operator: "=", Value: "$a"}),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCycle)
		assert.ErrorContains(t, err, "a -> b -> a")
	})
}

func TestDescendants(t *testing.T) {
	g, err := Build([]domain.VariableConfig{
		queryVar("region", "region"),
		queryVar("host", "host", domain.QueryFilter{Name: "region", Operator: "=", Value: "$region"}),
		queryVar("pod", "pod", domain.QueryFilter{Name: "host", Operator: "=", Value: "$host"}),
		queryVar("zone", "zone", domain.QueryFilter{Name: "region", Operator: "=", Value: "$region"}),
		queryVar("team", "team"),
		queryVar("owner", "owner", domain.QueryFilter{Name: "team", Operator: "=", Value: "$team"}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"host", "zone", "pod"}, g.Descendants("region"))
	assert.Equal(t, []string{"owner"}, g.Descendants("team"))
	assert.Empty(t, g.Descendants("pod"))
}

func TestDescendantsDeepChain(t *testing.T) {
	configs := []domain.VariableConfig{queryVar("v0", "f")}
	for i := 1; i < 2000; i++ {
		prev := configs[i-1].Name
		configs = append(configs, queryVar(
			"v"+strconv.Itoa(i), "f",
			domain.QueryFilter{Name: "f", Operator: "=", Value: "$" + prev},
		))
	}

	g, err := Build(configs)
	require.NoError(t, err)
	assert.Len(t, g.Descendants("v0"), 1999)
}
