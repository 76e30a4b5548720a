package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferences(t *testing.T) {
	t.Run("plain and braced forms", func(t *testing.T) {
		refs := References(`region='$region' AND host IN (${hosts}) AND x=$region`)
		assert.Equal(t, []string{"region", "hosts"}, refs)
	})

	t.Run("no references", func(t *testing.T) {
		assert.Empty(t, References("SELECT * FROM logs"))
	})

	t.Run("dollar without name", func(t *testing.T) {
		assert.Empty(t, References("cost > $ 5"))
	})
}

func TestSubstitute(t *testing.T) {
	known := map[string]bool{"region": true, "hosts": true}
	values := map[string]string{"region": "us-east"}
	lookup := func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}

	t.Run("resolved reference", func(t *testing.T) {
		out, unresolved := Substitute("region='$region'", known, lookup)
		assert.Equal(t, "region='us-east'", out)
		assert.Empty(t, unresolved)
	})

	t.Run("unresolved known reference is reported", func(t *testing.T) {
		out, unresolved := Substitute("host IN (${hosts})", known, lookup)
		assert.Equal(t, "host IN (${hosts})", out)
		assert.Equal(t, []string{"hosts"}, unresolved)
	})

	t.Run("unknown reference is left alone", func(t *testing.T) {
		out, unresolved := Substitute("price='$5' AND $other", known, lookup)
		assert.Equal(t, "price='$5' AND $other", out)
		assert.Empty(t, unresolved)
	})
}

func TestQuoteList(t *testing.T) {
	assert.Equal(t, "'a','b'", QuoteList([]string{"a", "b"}))
	assert.Equal(t, "'o''brien'", QuoteList([]string{"o'brien"}))
	assert.Equal(t, "", QuoteList(nil))
}

func TestSingle(t *testing.T) {
	tests := []struct {
		text string
		name string
		ok   bool
	}{
		{"$region", "region", true},
		{" ${k8s.cluster} ", "k8s.cluster", true},
		{"prefix-$region", "", false},
		{"$region$env", "", false},
		{"us-east", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, ok := Single(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
		})
	}
}
