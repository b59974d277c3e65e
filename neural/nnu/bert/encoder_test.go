package bert

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyConfig() Config {
	return Config{
		VocabSize:             32,
		HiddenSize:            8,
		NumHiddenLayers:       2,
		NumAttentionHeads:     2,
		IntermediateSize:      16,
		MaxPositionEmbeddings: 16,
		LayerNormEps:          1e-12,
		InitializerRange:      0.02,
	}
}

func TestEncodeShape(t *testing.T) {
	enc, err := NewEncoder(tinyConfig(), 1)
	require.NoError(t, err)

	out, err := enc.Encode([][]int{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 8}, out.Shape)
	assert.False(t, out.RequiresGrad)
	assert.Nil(t, out.Creator)
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc, err := NewEncoder(tinyConfig(), 1)
	require.NoError(t, err)

	first, err := enc.Encode([][]int{{1, 2, 3, 4}})
	require.NoError(t, err)
	second, err := enc.Encode([][]int{{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestEncoderParametersFrozen(t *testing.T) {
	enc, err := NewEncoder(tinyConfig(), 1)
	require.NoError(t, err)

	for _, p := range enc.Parameters() {
		assert.False(t, p.RequiresGrad)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	enc, err := NewEncoder(tinyConfig(), 1)
	require.NoError(t, err)

	_, err = enc.Encode(nil)
	require.Error(t, err)

	_, err = enc.Encode([][]int{{1, 99}})
	require.Error(t, err, "token id beyond vocab size")

	_, err = enc.Encode([][]int{{1, 2}, {3}})
	require.Error(t, err, "ragged batch")

	long := make([]int, 17)
	_, err = enc.Encode([][]int{long})
	require.Error(t, err, "sequence beyond max positions")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	enc, err := NewEncoder(tinyConfig(), 42)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "encoder.gob")
	require.NoError(t, enc.Save(path))

	loaded, err := LoadEncoder(path)
	require.NoError(t, err)
	assert.Equal(t, enc.Config, loaded.Config)

	want, err := enc.Encode([][]int{{7, 8, 9}})
	require.NoError(t, err)
	got, err := loaded.Encode([][]int{{7, 8, 9}})
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)

	for _, p := range loaded.Parameters() {
		assert.False(t, p.RequiresGrad)
	}
}

func TestLoadEncoderMissingFile(t *testing.T) {
	_, err := LoadEncoder(filepath.Join(t.TempDir(), "missing.gob"))
	require.Error(t, err)
}
