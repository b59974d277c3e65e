package sentiment

import (
	"fmt"
	"math/rand"

	"github.com/golangast/sentimenter/neural/nn"
	"github.com/golangast/sentimenter/neural/nnu/bert"
	"github.com/golangast/sentimenter/neural/tensor"
)

// Model is the sentiment classifier: a frozen pretrained encoder feeding a
// trainable bidirectional GRU head with a single-unit output projection.
// Only the head's parameters ever receive gradients or optimizer updates.
type Model struct {
	cfg     Config
	encoder *bert.Encoder
	rnn     *nn.GRU
	out     *nn.Linear
	dropout *nn.Dropout
	rng     *rand.Rand
}

// NewModel builds a model around an already-loaded frozen encoder.
func NewModel(encoder *bert.Encoder, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	rnn, err := nn.NewGRU(encoder.HiddenSize(), cfg.HiddenDim, cfg.Layers, cfg.Bidirectional, cfg.Dropout, rng)
	if err != nil {
		return nil, err
	}

	return &Model{
		cfg:     cfg,
		encoder: encoder,
		rnn:     rnn,
		out:     nn.NewLinear(rnn.OutputSize(), 1, rng),
		dropout: nn.NewDropout(cfg.Dropout),
		rng:     rng,
	}, nil
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Encoder returns the frozen encoder.
func (m *Model) Encoder() *bert.Encoder { return m.encoder }

// Parameters returns the trainable parameter group: the GRU and the output
// projection. Encoder weights are deliberately absent, so an optimizer built
// over this group can never touch them.
func (m *Model) Parameters() []*tensor.Tensor {
	return append(m.rnn.Parameters(), m.out.Parameters()...)
}

// NamedParameters returns the trainable parameters keyed by stable names,
// the form checkpoints are stored in.
func (m *Model) NamedParameters() map[string]*tensor.Tensor {
	named := make(map[string]*tensor.Tensor)
	for name, p := range m.rnn.NamedParameters() {
		named["rnn."+name] = p
	}
	named["out.weight"] = m.out.Weights
	named["out.bias"] = m.out.Biases
	return named
}

// Forward maps a padded batch of token-id rows to one logit per example.
// The encoder step runs without gradient tracking regardless of training
// mode. In evaluation mode the whole pass runs with graph recording
// disabled, so the logits come back as leaf tensors.
func (m *Model) Forward(ids [][]int, training bool) (*tensor.Tensor, error) {
	if !training {
		var logits *tensor.Tensor
		err := tensor.NoGrad(func() error {
			var ferr error
			logits, ferr = m.forward(ids, false)
			return ferr
		})
		return logits, err
	}
	return m.forward(ids, true)
}

func (m *Model) forward(ids [][]int, training bool) (*tensor.Tensor, error) {
	embedded, err := m.encoder.Encode(ids)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	hidden, err := m.rnn.Forward(embedded, training, m.rng)
	if err != nil {
		return nil, fmt.Errorf("recurrent head: %w", err)
	}

	hidden, err = m.dropout.Forward(hidden, training, m.rng)
	if err != nil {
		return nil, err
	}

	logits, err := m.out.Forward(hidden)
	if err != nil {
		return nil, fmt.Errorf("output projection: %w", err)
	}

	// [batch, 1] -> [batch]
	return logits.Reshape([]int{len(ids)})
}
