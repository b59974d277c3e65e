package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golangast/sentimenter/neural/tensor"
)

// Linear represents a fully connected layer.
type Linear struct {
	Weights *tensor.Tensor
	Biases  *tensor.Tensor
}

// NewLinear creates a new Linear layer with He-initialized weights and zero
// biases, drawn from the given source of randomness.
func NewLinear(inputDim, outputDim int, rng *rand.Rand) *Linear {
	stdDev := math.Sqrt(2.0 / float64(inputDim))
	weightsData := make([]float64, inputDim*outputDim)
	for i := range weightsData {
		weightsData[i] = rng.NormFloat64() * stdDev
	}
	return &Linear{
		Weights: tensor.NewTensor([]int{inputDim, outputDim}, weightsData, true),
		Biases:  tensor.NewTensor([]int{outputDim}, nil, true),
	}
}

// Parameters returns all learnable parameters of the layer.
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.Weights, l.Biases}
}

// Forward performs the forward pass for a [batch, inputDim] input.
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input == nil {
		return nil, fmt.Errorf("Linear.Forward received a nil input tensor")
	}
	output, err := input.MatMul(l.Weights)
	if err != nil {
		return nil, fmt.Errorf("linear layer matrix multiplication failed: %w", err)
	}
	output, err = output.AddWithBroadcast(l.Biases)
	if err != nil {
		return nil, fmt.Errorf("linear layer bias addition failed: %w", err)
	}
	return output, nil
}

// Dropout zeroes a fraction P of its input during training, scaling the
// survivors by 1/(1-P) so expected activations match evaluation mode.
type Dropout struct {
	P float64
}

// NewDropout creates a Dropout layer with the given drop probability.
func NewDropout(p float64) *Dropout {
	return &Dropout{P: p}
}

// Forward applies dropout when training is true; in evaluation mode it is the
// identity, which makes evaluation passes deterministic.
func (d *Dropout) Forward(input *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if !training || d.P <= 0 {
		return input, nil
	}
	if d.P >= 1 {
		return nil, fmt.Errorf("dropout probability %v leaves nothing to keep", d.P)
	}

	keep := 1.0 - d.P
	maskData := make([]float64, len(input.Data))
	for i := range maskData {
		if rng.Float64() < keep {
			maskData[i] = 1.0 / keep
		}
	}
	mask := tensor.NewTensor(input.Shape, maskData, false)
	return input.Mul(mask)
}
