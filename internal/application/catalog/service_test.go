package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProducts(t *testing.T) {
	svc := NewService()
	got, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 11)

	seen := map[int]bool{}
	for _, p := range got {
		assert.False(t, seen[p.ID], "duplicate product id %d", p.ID)
		seen[p.ID] = true
		assert.NotEmpty(t, p.Name)
		assert.Greater(t, p.Price, 0)
		assert.NotEmpty(t, p.Image)
	}

	// Callers get their own slice; mutating it must not leak back.
	got[0].Heart = -1
	again, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, -1, again[0].Heart)
}
