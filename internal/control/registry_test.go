package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	t.Run("add and remove", func(t *testing.T) {
		r := NewRegistry()
		h := NewHandle()

		r.Add(h, nil)
		assert.True(t, r.Has(h))
		assert.Equal(t, 1, r.Len())

		r.Remove(h)
		assert.False(t, r.Has(h))
		assert.Equal(t, 0, r.Len())
	})

	t.Run("add is idempotent", func(t *testing.T) {
		r := NewRegistry()
		h := NewHandle()

		r.Add(h, nil)
		r.Add(h, nil)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("removing an absent handle is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Remove(NewHandle())
		assert.Equal(t, 0, r.Len())
	})

	t.Run("handles are unique", func(t *testing.T) {
		r := NewRegistry()
		for i := 0; i < 10; i++ {
			r.Add(NewHandle(), nil)
		}
		assert.Equal(t, 10, r.Len())
	})
}
