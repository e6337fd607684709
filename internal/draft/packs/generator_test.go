package packs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsuns/draftroom/internal/models"
)

func testGenerator(t *testing.T) *SeededGenerator {
	t.Helper()
	catalogs, err := LoadCatalogDir("testdata")
	require.NoError(t, err)
	return NewSeededGenerator(catalogs)
}

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("testdata", "tst.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "TST", cat.Code)
	assert.NotEmpty(t, cat.Leaders)
	assert.NotEmpty(t, cat.Cards)
}

func TestGenerateShape(t *testing.T) {
	g := testGenerator(t)
	pools, err := g.Generate(context.Background(), "tst", 4, 14, 7)
	require.NoError(t, err)
	require.Len(t, pools, 4)

	for _, pool := range pools {
		require.Len(t, pool.LeaderOfferings, models.LeaderRounds)
		for _, offering := range pool.LeaderOfferings {
			assert.Len(t, offering, LeadersPerOffering)
			for _, c := range offering {
				assert.True(t, c.Leader)
			}
		}
		require.Len(t, pool.Packs, models.PackRounds)
		for _, pack := range pool.Packs {
			assert.Len(t, pack, 14)
			seen := map[string]bool{}
			for _, c := range pack {
				assert.False(t, seen[c.ID], "card %s repeated within a pack", c.ID)
				seen[c.ID] = true
				assert.False(t, c.Leader)
			}
		}
	}
}

func TestGenerateReproducible(t *testing.T) {
	g := testGenerator(t)
	a, err := g.Generate(context.Background(), "TST", 3, 10, 42)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), "TST", 3, 10, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := g.Generate(context.Background(), "TST", 3, 10, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different seeds should produce different product")
}

func TestGenerateUnknownSet(t *testing.T) {
	g := testGenerator(t)
	_, err := g.Generate(context.Background(), "NOPE", 2, 14, 1)
	assert.Error(t, err)
}
