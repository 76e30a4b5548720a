package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFilters(t *testing.T) {
	t.Run("literal plus is kept", func(t *testing.T) {
		filters, err := DecodeFilters(`%5B%7B%22name%22%3A%22tz%22%2C%22operator%22%3A%22%3D%22%2C%22value%22%3A%22UTC+02%3A00%22%7D%5D`)
		require.NoError(t, err)
		assert.Equal(t, []Filter{{Name: "tz", Operator: "=", Value: "UTC+02:00"}}, filters)
	})

	t.Run("encoded space and plus", func(t *testing.T) {
		filters, err := DecodeFilters(`[{"name":"msg","operator":"=","value":"a%20b%2Bc"}]`)
		require.NoError(t, err)
		assert.Equal(t, "a b+c", filters[0].Value)
	})

	t.Run("round trip", func(t *testing.T) {
		in := []Filter{{Name: "msg", Operator: "LIKE", Value: "50% off + free/shipping"}}
		encoded, err := EncodeFilters(in)
		require.NoError(t, err)

		out, err := DecodeFilters(encoded)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("empty is no filters", func(t *testing.T) {
		filters, err := DecodeFilters("")
		require.NoError(t, err)
		assert.Nil(t, filters)
	})

	t.Run("bad escape", func(t *testing.T) {
		_, err := DecodeFilters("%zz")
		assert.Error(t, err)
	})
}
