package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentimenter/neural/tensor"
)

func TestGRUCellForwardShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cell := NewGRUCell(4, 3, rng)

	input := tensor.NewTensor([]int{2, 4}, nil, false)
	hidden := tensor.NewTensor([]int{2, 3}, nil, false)

	out, err := cell.Forward(input, hidden)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape)
}

func TestGRUCellRejectsBadShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cell := NewGRUCell(4, 3, rng)

	input := tensor.NewTensor([]int{2, 5}, nil, false)
	hidden := tensor.NewTensor([]int{2, 3}, nil, false)
	_, err := cell.Forward(input, hidden)
	require.Error(t, err)
}

// Check one weight's analytic gradient against a central finite difference
// through the full cell graph.
func TestGRUCellGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cell := NewGRUCell(2, 2, rng)

	inputData := []float64{0.3, -0.6}
	hiddenData := []float64{0.1, 0.2}

	forwardSum := func() float64 {
		input := tensor.NewTensor([]int{1, 2}, append([]float64(nil), inputData...), false)
		hidden := tensor.NewTensor([]int{1, 2}, append([]float64(nil), hiddenData...), false)
		out, err := cell.Forward(input, hidden)
		require.NoError(t, err)
		sum := 0.0
		for _, v := range out.Data {
			sum += v
		}
		return sum
	}

	input := tensor.NewTensor([]int{1, 2}, append([]float64(nil), inputData...), false)
	hidden := tensor.NewTensor([]int{1, 2}, append([]float64(nil), hiddenData...), false)
	out, err := cell.Forward(input, hidden)
	require.NoError(t, err)

	for _, p := range cell.Parameters() {
		p.ZeroGrad()
	}
	err = out.Backward(tensor.NewTensor(out.Shape, []float64{1, 1}, false))
	require.NoError(t, err)

	w := cell.Wn.Weights
	const eps = 1e-6
	for _, idx := range []int{0, 3, 5} {
		orig := w.Data[idx]
		w.Data[idx] = orig + eps
		plus := forwardSum()
		w.Data[idx] = orig - eps
		minus := forwardSum()
		w.Data[idx] = orig

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, w.Grad.Data[idx], 1e-5, "weight index %d", idx)
	}
}

func TestGRUBidirectionalOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	gru, err := NewGRU(5, 4, 2, true, 0.25, rng)
	require.NoError(t, err)
	assert.Equal(t, 8, gru.OutputSize())

	embedded := tensor.NewTensor([]int{3, 6, 5}, nil, false)
	for i := range embedded.Data {
		embedded.Data[i] = rng.NormFloat64()
	}

	out, err := gru.Forward(embedded, false, rng)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 8}, out.Shape)
}

func TestGRUUnidirectionalOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	gru, err := NewGRU(5, 4, 1, false, 0.5, rng)
	require.NoError(t, err)
	assert.Equal(t, 4, gru.OutputSize())

	embedded := tensor.NewTensor([]int{2, 3, 5}, nil, false)
	out, err := gru.Forward(embedded, false, rng)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, out.Shape)
}

// Evaluation-mode forward passes must be deterministic: dropout is the only
// source of randomness and it is disabled when training is false.
func TestGRUEvalForwardIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	gru, err := NewGRU(3, 4, 2, true, 0.5, rng)
	require.NoError(t, err)

	embedded := tensor.NewTensor([]int{2, 5, 3}, nil, false)
	for i := range embedded.Data {
		embedded.Data[i] = rng.NormFloat64()
	}

	first, err := gru.Forward(embedded, false, rand.New(rand.NewSource(10)))
	require.NoError(t, err)
	second, err := gru.Forward(embedded, false, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}

func TestDropoutEvalIsIdentity(t *testing.T) {
	d := NewDropout(0.5)
	input := tensor.NewTensor([]int{4}, []float64{1, 2, 3, 4}, false)

	out, err := d.Forward(input, false, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, input.Data, out.Data)
}

func TestDropoutTrainScalesSurvivors(t *testing.T) {
	d := NewDropout(0.5)
	input := tensor.NewTensor([]int{1000}, nil, false)
	for i := range input.Data {
		input.Data[i] = 1
	}

	out, err := d.Forward(input, true, rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	dropped := 0
	for _, v := range out.Data {
		if v == 0 {
			dropped++
		} else {
			assert.InDelta(t, 2.0, v, 1e-12)
		}
	}
	// Roughly half should be dropped.
	assert.Greater(t, dropped, 350)
	assert.Less(t, dropped, 650)
}

func TestBCEWithLogitsLoss(t *testing.T) {
	logits := tensor.NewTensor([]int{2}, []float64{0, 2}, false)
	labels := []float64{1, 0}

	loss, grad, err := BCEWithLogitsLoss(logits, labels)
	require.NoError(t, err)

	// Manual: -log(sigmoid(0)) = log 2; -log(1-sigmoid(2)) = log(1+e^2)
	want := (math.Log(2) + math.Log(1+math.Exp(2))) / 2
	assert.InDelta(t, want, loss, 1e-12)

	// Gradient is (sigmoid(x) - y) / n.
	assert.InDelta(t, (0.5-1)/2, grad.Data[0], 1e-12)
	sig2 := 1 / (1 + math.Exp(-2.0))
	assert.InDelta(t, sig2/2, grad.Data[1], 1e-12)
}

func TestBCEWithLogitsLossMismatch(t *testing.T) {
	logits := tensor.NewTensor([]int{2}, []float64{0, 1}, false)
	_, _, err := BCEWithLogitsLoss(logits, []float64{1})
	require.Error(t, err)
}
