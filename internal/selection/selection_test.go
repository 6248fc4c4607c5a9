package selection

import (
	"testing"

	"github.com/irfndi/optionscope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s := New()
	assert.False(t, s.HasSelection())
	_, ok := s.Index()
	assert.False(t, ok)
	assert.Equal(t, models.ModelBlackScholes, s.Model())
}

func TestSelect_Bounds(t *testing.T) {
	const n = 3
	for i := -2; i <= n+1; i++ {
		got, err := New().Select(i, n)
		if i >= 0 && i < n {
			require.NoError(t, err, "index %d", i)
			idx, ok := got.Index()
			assert.True(t, ok)
			assert.Equal(t, i, idx)
			continue
		}

		var idxErr *InvalidIndexError
		require.ErrorAs(t, err, &idxErr, "index %d", i)
		assert.Equal(t, i, idxErr.Index)
		assert.Equal(t, n, idxErr.Len)
		assert.Equal(t, New(), got)
	}
}

func TestSelect_InvalidKeepsPrevious(t *testing.T) {
	s, err := New().Select(1, 2)
	require.NoError(t, err)
	s, err = s.WithModel(models.ModelBinomial)
	require.NoError(t, err)

	after, err := s.Select(5, 2)
	require.Error(t, err)
	assert.Equal(t, s, after)
}

func TestSelect_EmptyCatalog(t *testing.T) {
	_, err := New().Select(0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog is empty")
}

func TestWithModel_KeepsSelection(t *testing.T) {
	s, err := New().Select(2, 4)
	require.NoError(t, err)

	s, err = s.WithModel(models.ModelMonteCarlo)
	require.NoError(t, err)
	idx, ok := s.Index()
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, models.ModelMonteCarlo, s.Model())

	unchanged, err := s.WithModel("heston")
	assert.ErrorIs(t, err, models.ErrUnknownModel)
	assert.Equal(t, s, unchanged)
}

func TestClear(t *testing.T) {
	s, _ := New().Select(0, 1)
	s, _ = s.WithModel(models.ModelBinomial)

	cleared := s.Clear()
	assert.False(t, cleared.HasSelection())
	assert.Equal(t, models.ModelBlackScholes, cleared.Model())

	// Values are independent.
	assert.True(t, s.HasSelection())
}
