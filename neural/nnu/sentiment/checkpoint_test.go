package sentiment

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentimenter/neural/tensor"
)

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")

	params := map[string]*tensor.Tensor{
		"out.weight": tensor.NewTensor([]int{2, 1}, []float64{1.5, -2.5}, true),
		"out.bias":   tensor.NewTensor([]int{1}, []float64{0.25}, true),
	}
	require.NoError(t, SaveCheckpoint(path, params))

	// Clobber the live values, then restore.
	params["out.weight"].Data[0] = 99
	params["out.bias"].Data[0] = 99

	require.NoError(t, LoadCheckpoint(path, params))
	assert.Equal(t, []float64{1.5, -2.5}, params["out.weight"].Data)
	assert.Equal(t, []float64{0.25}, params["out.bias"].Data)
}

// Restoring must mutate the existing tensors in place so references held by
// the model and optimizer stay valid.
func TestCheckpointRestoresInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")

	p := tensor.NewTensor([]int{1}, []float64{7}, true)
	params := map[string]*tensor.Tensor{"out.bias": p}
	require.NoError(t, SaveCheckpoint(path, params))

	p.Data[0] = 0
	require.NoError(t, LoadCheckpoint(path, params))
	assert.Equal(t, 7.0, p.Data[0])
	assert.Same(t, p, params["out.bias"])
}

// A snapshot must not alias live parameters: training after saving must not
// change what was saved.
func TestCheckpointSnapshotIsDetached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")

	p := tensor.NewTensor([]int{1}, []float64{1}, true)
	params := map[string]*tensor.Tensor{"out.bias": p}
	require.NoError(t, SaveCheckpoint(path, params))

	p.Data[0] = 2
	require.NoError(t, LoadCheckpoint(path, params))
	assert.Equal(t, 1.0, p.Data[0])
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	params := map[string]*tensor.Tensor{
		"out.bias": tensor.NewTensor([]int{1}, nil, true),
	}
	err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.gob"), params)
	require.Error(t, err)
}

func TestLoadCheckpointMissingParameter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, SaveCheckpoint(path, map[string]*tensor.Tensor{
		"out.bias": tensor.NewTensor([]int{1}, nil, true),
	}))

	err := LoadCheckpoint(path, map[string]*tensor.Tensor{
		"rnn.l0.forward.wz.weight": tensor.NewTensor([]int{1}, nil, true),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing parameter")
}

func TestLoadCheckpointShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, SaveCheckpoint(path, map[string]*tensor.Tensor{
		"out.bias": tensor.NewTensor([]int{2}, nil, true),
	}))

	err := LoadCheckpoint(path, map[string]*tensor.Tensor{
		"out.bias": tensor.NewTensor([]int{3}, nil, true),
	})
	require.Error(t, err)
}

// A transposed shape has the same element count; it must still be rejected.
func TestLoadCheckpointSameSizeShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, SaveCheckpoint(path, map[string]*tensor.Tensor{
		"out.weight": tensor.NewTensor([]int{2, 3}, nil, true),
	}))

	err := LoadCheckpoint(path, map[string]*tensor.Tensor{
		"out.weight": tensor.NewTensor([]int{3, 2}, nil, true),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape")
}
