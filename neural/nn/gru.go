package nn

import (
	"fmt"
	"math/rand"

	"github.com/golangast/sentimenter/neural/tensor"
)

// GRUCell represents a single gated recurrent unit cell. Each gate is a
// linear map over the concatenation of the current input and the previous
// hidden state.
type GRUCell struct {
	InputSize  int
	HiddenSize int

	// Update gate, reset gate, and candidate state weights.
	Wz, Wr, Wn *Linear
}

// NewGRUCell creates a new GRUCell.
func NewGRUCell(inputSize, hiddenSize int, rng *rand.Rand) *GRUCell {
	return &GRUCell{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wz:         NewLinear(inputSize+hiddenSize, hiddenSize, rng),
		Wr:         NewLinear(inputSize+hiddenSize, hiddenSize, rng),
		Wn:         NewLinear(inputSize+hiddenSize, hiddenSize, rng),
	}
}

// Parameters returns all learnable parameters of the cell.
func (c *GRUCell) Parameters() []*tensor.Tensor {
	params := c.Wz.Parameters()
	params = append(params, c.Wr.Parameters()...)
	params = append(params, c.Wn.Parameters()...)
	return params
}

func (c *GRUCell) namedParameters(prefix string) map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{
		prefix + ".wz.weight": c.Wz.Weights,
		prefix + ".wz.bias":   c.Wz.Biases,
		prefix + ".wr.weight": c.Wr.Weights,
		prefix + ".wr.bias":   c.Wr.Biases,
		prefix + ".wn.weight": c.Wn.Weights,
		prefix + ".wn.bias":   c.Wn.Biases,
	}
}

// Forward advances the cell one timestep.
//
//	z = sigmoid(Wz . [x, h])
//	r = sigmoid(Wr . [x, h])
//	n = tanh(Wn . [x, r*h])
//	h' = (1-z)*n + z*h
func (c *GRUCell) Forward(input, prevHidden *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 || input.Shape[1] != c.InputSize {
		return nil, fmt.Errorf("GRUCell.Forward expects input shape [batch %d], got %v", c.InputSize, input.Shape)
	}
	if len(prevHidden.Shape) != 2 || prevHidden.Shape[1] != c.HiddenSize {
		return nil, fmt.Errorf("GRUCell.Forward expects hidden shape [batch %d], got %v", c.HiddenSize, prevHidden.Shape)
	}

	combined, err := tensor.Concat([]*tensor.Tensor{input, prevHidden}, 1)
	if err != nil {
		return nil, err
	}

	z, err := c.Wz.Forward(combined)
	if err != nil {
		return nil, err
	}
	z, err = z.Sigmoid()
	if err != nil {
		return nil, err
	}

	r, err := c.Wr.Forward(combined)
	if err != nil {
		return nil, err
	}
	r, err = r.Sigmoid()
	if err != nil {
		return nil, err
	}

	gatedHidden, err := r.Mul(prevHidden)
	if err != nil {
		return nil, err
	}
	candidateInput, err := tensor.Concat([]*tensor.Tensor{input, gatedHidden}, 1)
	if err != nil {
		return nil, err
	}
	n, err := c.Wn.Forward(candidateInput)
	if err != nil {
		return nil, err
	}
	n, err = n.Tanh()
	if err != nil {
		return nil, err
	}

	oneMinusZ, err := z.OneMinus()
	if err != nil {
		return nil, err
	}
	newPart, err := oneMinusZ.Mul(n)
	if err != nil {
		return nil, err
	}
	keptPart, err := z.Mul(prevHidden)
	if err != nil {
		return nil, err
	}
	return newPart.Add(keptPart)
}

// GRU is a multi-layer, optionally bidirectional GRU over embedded
// sequences. Inter-layer dropout applies only when there is more than one
// layer, and only between layers.
type GRU struct {
	InputSize     int
	HiddenSize    int
	NumLayers     int
	Bidirectional bool

	forwardCells  []*GRUCell
	backwardCells []*GRUCell
	dropout       *Dropout
}

// NewGRU creates a new GRU. dropout is the inter-layer drop probability; it
// is ignored for single-layer networks.
func NewGRU(inputSize, hiddenSize, numLayers int, bidirectional bool, dropout float64, rng *rand.Rand) (*GRU, error) {
	if numLayers < 1 {
		return nil, fmt.Errorf("GRU requires at least one layer, got %d", numLayers)
	}
	if numLayers < 2 {
		dropout = 0
	}

	g := &GRU{
		InputSize:     inputSize,
		HiddenSize:    hiddenSize,
		NumLayers:     numLayers,
		Bidirectional: bidirectional,
		dropout:       NewDropout(dropout),
	}

	layerInput := inputSize
	for l := 0; l < numLayers; l++ {
		g.forwardCells = append(g.forwardCells, NewGRUCell(layerInput, hiddenSize, rng))
		if bidirectional {
			g.backwardCells = append(g.backwardCells, NewGRUCell(layerInput, hiddenSize, rng))
			layerInput = 2 * hiddenSize
		} else {
			layerInput = hiddenSize
		}
	}
	return g, nil
}

// Parameters returns all learnable parameters across layers and directions.
func (g *GRU) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, c := range g.forwardCells {
		params = append(params, c.Parameters()...)
	}
	for _, c := range g.backwardCells {
		params = append(params, c.Parameters()...)
	}
	return params
}

// NamedParameters returns all learnable parameters keyed by stable names of
// the form "l<layer>.<direction>.<gate>.<kind>".
func (g *GRU) NamedParameters() map[string]*tensor.Tensor {
	named := make(map[string]*tensor.Tensor)
	for l, c := range g.forwardCells {
		for name, p := range c.namedParameters(fmt.Sprintf("l%d.forward", l)) {
			named[name] = p
		}
	}
	for l, c := range g.backwardCells {
		for name, p := range c.namedParameters(fmt.Sprintf("l%d.backward", l)) {
			named[name] = p
		}
	}
	return named
}

// OutputSize returns the width of the final hidden representation.
func (g *GRU) OutputSize() int {
	if g.Bidirectional {
		return 2 * g.HiddenSize
	}
	return g.HiddenSize
}

// Forward consumes an embedded sequence of shape [batch, seq, inputSize] and
// returns the final hidden representation of shape [batch, OutputSize()]:
// the last forward hidden state, concatenated with the last backward hidden
// state when bidirectional.
func (g *GRU) Forward(embedded *tensor.Tensor, training bool, rng *rand.Rand) (*tensor.Tensor, error) {
	if len(embedded.Shape) != 3 {
		return nil, fmt.Errorf("GRU.Forward expects a [batch, seq, dim] tensor, got shape %v", embedded.Shape)
	}
	if embedded.Shape[2] != g.InputSize {
		return nil, fmt.Errorf("GRU.Forward expects input dim %d, got %d", g.InputSize, embedded.Shape[2])
	}

	batch := embedded.Shape[0]
	seqLen := embedded.Shape[1]

	steps := make([]*tensor.Tensor, seqLen)
	for t := 0; t < seqLen; t++ {
		step, err := embedded.TimeStep(t)
		if err != nil {
			return nil, err
		}
		steps[t] = step
	}

	var finalForward, finalBackward *tensor.Tensor
	for l := 0; l < g.NumLayers; l++ {
		forwardStates := make([]*tensor.Tensor, seqLen)
		hidden := tensor.NewTensor([]int{batch, g.HiddenSize}, nil, false)
		for t := 0; t < seqLen; t++ {
			var err error
			hidden, err = g.forwardCells[l].Forward(steps[t], hidden)
			if err != nil {
				return nil, fmt.Errorf("GRU layer %d forward direction step %d: %w", l, t, err)
			}
			forwardStates[t] = hidden
		}
		finalForward = hidden

		var backwardStates []*tensor.Tensor
		if g.Bidirectional {
			backwardStates = make([]*tensor.Tensor, seqLen)
			hidden = tensor.NewTensor([]int{batch, g.HiddenSize}, nil, false)
			for t := seqLen - 1; t >= 0; t-- {
				var err error
				hidden, err = g.backwardCells[l].Forward(steps[t], hidden)
				if err != nil {
					return nil, fmt.Errorf("GRU layer %d backward direction step %d: %w", l, t, err)
				}
				backwardStates[t] = hidden
			}
			finalBackward = hidden
		}

		if l == g.NumLayers-1 {
			break
		}

		// The next layer consumes this layer's per-step outputs, with
		// inter-layer dropout during training.
		for t := 0; t < seqLen; t++ {
			out := forwardStates[t]
			if g.Bidirectional {
				var err error
				out, err = tensor.Concat([]*tensor.Tensor{forwardStates[t], backwardStates[t]}, 1)
				if err != nil {
					return nil, err
				}
			}
			out, err := g.dropout.Forward(out, training, rng)
			if err != nil {
				return nil, err
			}
			steps[t] = out
		}
	}

	if !g.Bidirectional {
		return finalForward, nil
	}
	return tensor.Concat([]*tensor.Tensor{finalForward, finalBackward}, 1)
}
