// Package bert implements a frozen BERT-style transformer encoder. The
// encoder is a pure function over token ids: its weights never require
// gradients, its forward pass records no computation graph, and Encode never
// mutates state. The trainable classification head lives elsewhere.
package bert

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/pkg/errors"

	"github.com/golangast/sentimenter/neural/tensor"
)

// EncoderLayer holds one transformer block's weights.
type EncoderLayer struct {
	// Self-attention projections.
	Wq, Wk, Wv, Wo *tensor.Tensor
	Bq, Bk, Bv, Bo *tensor.Tensor
	AttnNormGamma  *tensor.Tensor
	AttnNormBeta   *tensor.Tensor

	// Position-wise feed-forward.
	W1, W2       *tensor.Tensor
	B1, B2       *tensor.Tensor
	OutNormGamma *tensor.Tensor
	OutNormBeta  *tensor.Tensor
}

// Encoder produces per-token embeddings for batches of token ids.
type Encoder struct {
	Config Config

	TokenEmbeddings    *tensor.Tensor // [vocab, hidden]
	PositionEmbeddings *tensor.Tensor // [maxPositions, hidden]
	EmbedNormGamma     *tensor.Tensor // [hidden]
	EmbedNormBeta      *tensor.Tensor // [hidden]
	Layers             []*EncoderLayer
}

// NewEncoder creates an encoder with randomly initialized frozen weights.
// Real runs load pretrained weights with LoadEncoder; random initialization
// exists for bootstrapping and tests.
func NewEncoder(cfg Config, seed int64) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))

	enc := &Encoder{
		Config:             cfg,
		TokenEmbeddings:    frozenNormal(rng, cfg.InitializerRange, cfg.VocabSize, cfg.HiddenSize),
		PositionEmbeddings: frozenNormal(rng, cfg.InitializerRange, cfg.MaxPositionEmbeddings, cfg.HiddenSize),
		EmbedNormGamma:     frozenOnes(cfg.HiddenSize),
		EmbedNormBeta:      frozenZeros(cfg.HiddenSize),
	}
	for i := 0; i < cfg.NumHiddenLayers; i++ {
		enc.Layers = append(enc.Layers, &EncoderLayer{
			Wq:            frozenNormal(rng, cfg.InitializerRange, cfg.HiddenSize, cfg.HiddenSize),
			Wk:            frozenNormal(rng, cfg.InitializerRange, cfg.HiddenSize, cfg.HiddenSize),
			Wv:            frozenNormal(rng, cfg.InitializerRange, cfg.HiddenSize, cfg.HiddenSize),
			Wo:            frozenNormal(rng, cfg.InitializerRange, cfg.HiddenSize, cfg.HiddenSize),
			Bq:            frozenZeros(cfg.HiddenSize),
			Bk:            frozenZeros(cfg.HiddenSize),
			Bv:            frozenZeros(cfg.HiddenSize),
			Bo:            frozenZeros(cfg.HiddenSize),
			AttnNormGamma: frozenOnes(cfg.HiddenSize),
			AttnNormBeta:  frozenZeros(cfg.HiddenSize),
			W1:            frozenNormal(rng, cfg.InitializerRange, cfg.HiddenSize, cfg.IntermediateSize),
			W2:            frozenNormal(rng, cfg.InitializerRange, cfg.IntermediateSize, cfg.HiddenSize),
			B1:            frozenZeros(cfg.IntermediateSize),
			B2:            frozenZeros(cfg.HiddenSize),
			OutNormGamma:  frozenOnes(cfg.HiddenSize),
			OutNormBeta:   frozenZeros(cfg.HiddenSize),
		})
	}
	return enc, nil
}

// Parameters returns every weight tensor of the encoder. They all report
// RequiresGrad == false, before and after any amount of training.
func (e *Encoder) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{
		e.TokenEmbeddings, e.PositionEmbeddings, e.EmbedNormGamma, e.EmbedNormBeta,
	}
	for _, l := range e.Layers {
		params = append(params,
			l.Wq, l.Wk, l.Wv, l.Wo, l.Bq, l.Bk, l.Bv, l.Bo,
			l.AttnNormGamma, l.AttnNormBeta,
			l.W1, l.W2, l.B1, l.B2, l.OutNormGamma, l.OutNormBeta,
		)
	}
	return params
}

// HiddenSize returns the width of the per-token embeddings Encode produces.
func (e *Encoder) HiddenSize() int { return e.Config.HiddenSize }

// Encode runs the frozen forward pass over a padded batch of token-id rows,
// all of equal length, and returns a [batch, seq, hidden] tensor that does
// not require gradients.
func (e *Encoder) Encode(batch [][]int) (*tensor.Tensor, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("Encode received an empty batch")
	}
	seqLen := len(batch[0])
	if seqLen == 0 {
		return nil, fmt.Errorf("Encode received an empty sequence")
	}
	if seqLen > e.Config.MaxPositionEmbeddings {
		return nil, fmt.Errorf("sequence length %d exceeds maximum of %d", seqLen, e.Config.MaxPositionEmbeddings)
	}

	hidden := e.Config.HiddenSize
	out := tensor.NewTensor([]int{len(batch), seqLen, hidden}, nil, false)

	for b, ids := range batch {
		if len(ids) != seqLen {
			return nil, fmt.Errorf("ragged batch: row %d has length %d, want %d", b, len(ids), seqLen)
		}
		states, err := e.encodeSequence(ids)
		if err != nil {
			return nil, err
		}
		copy(out.Data[b*seqLen*hidden:(b+1)*seqLen*hidden], states)
	}
	return out, nil
}

// encodeSequence computes the [seq*hidden] embedding block for one sequence.
func (e *Encoder) encodeSequence(ids []int) ([]float64, error) {
	cfg := e.Config
	h := cfg.HiddenSize
	seq := len(ids)

	states := make([]float64, seq*h)
	for t, id := range ids {
		if id < 0 || id >= cfg.VocabSize {
			return nil, fmt.Errorf("token id %d out of range [0, %d)", id, cfg.VocabSize)
		}
		tok := e.TokenEmbeddings.Data[id*h : (id+1)*h]
		pos := e.PositionEmbeddings.Data[t*h : (t+1)*h]
		row := states[t*h : (t+1)*h]
		for i := 0; i < h; i++ {
			row[i] = tok[i] + pos[i]
		}
		layerNorm(row, e.EmbedNormGamma.Data, e.EmbedNormBeta.Data, cfg.LayerNormEps)
	}

	for _, layer := range e.Layers {
		e.applyLayer(layer, states, seq)
	}
	return states, nil
}

func (e *Encoder) applyLayer(l *EncoderLayer, states []float64, seq int) {
	cfg := e.Config
	h := cfg.HiddenSize
	heads := cfg.NumAttentionHeads
	headSize := h / heads
	scale := 1.0 / math.Sqrt(float64(headSize))

	q := project(states, l.Wq.Data, l.Bq.Data, seq, h, h)
	k := project(states, l.Wk.Data, l.Bk.Data, seq, h, h)
	v := project(states, l.Wv.Data, l.Bv.Data, seq, h, h)

	context := make([]float64, seq*h)
	scores := make([]float64, seq)
	for head := 0; head < heads; head++ {
		off := head * headSize
		for i := 0; i < seq; i++ {
			for j := 0; j < seq; j++ {
				sum := 0.0
				for d := 0; d < headSize; d++ {
					sum += q[i*h+off+d] * k[j*h+off+d]
				}
				scores[j] = sum * scale
			}
			softmaxInPlace(scores)
			for d := 0; d < headSize; d++ {
				sum := 0.0
				for j := 0; j < seq; j++ {
					sum += scores[j] * v[j*h+off+d]
				}
				context[i*h+off+d] = sum
			}
		}
	}

	attnOut := project(context, l.Wo.Data, l.Bo.Data, seq, h, h)
	for i := range attnOut {
		attnOut[i] += states[i]
	}
	for t := 0; t < seq; t++ {
		layerNorm(attnOut[t*h:(t+1)*h], l.AttnNormGamma.Data, l.AttnNormBeta.Data, cfg.LayerNormEps)
	}

	inter := project(attnOut, l.W1.Data, l.B1.Data, seq, h, cfg.IntermediateSize)
	for i := range inter {
		inter[i] = gelu(inter[i])
	}
	ffnOut := project(inter, l.W2.Data, l.B2.Data, seq, cfg.IntermediateSize, h)
	for i := range ffnOut {
		ffnOut[i] += attnOut[i]
	}
	for t := 0; t < seq; t++ {
		layerNorm(ffnOut[t*h:(t+1)*h], l.OutNormGamma.Data, l.OutNormBeta.Data, cfg.LayerNormEps)
	}

	copy(states, ffnOut)
}

// Save writes the encoder weights and configuration to a gob file.
func (e *Encoder) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating encoder file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(e); err != nil {
		return errors.Wrap(err, "encoding encoder weights")
	}
	return nil
}

// LoadEncoder reads encoder weights written by Save. Weights load once at
// startup and stay frozen for the process lifetime.
func LoadEncoder(path string) (*Encoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening encoder file")
	}
	defer f.Close()

	var enc Encoder
	if err := gob.NewDecoder(f).Decode(&enc); err != nil {
		return nil, errors.Wrap(err, "decoding encoder weights")
	}
	if err := enc.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "loaded encoder config")
	}
	for _, p := range enc.Parameters() {
		p.RequiresGrad = false
	}
	return &enc, nil
}

// project computes x @ w + b for a [rows, in] block and [in, out] weights.
func project(x, w, b []float64, rows, in, out int) []float64 {
	result := make([]float64, rows*out)
	for i := 0; i < rows; i++ {
		for j := 0; j < out; j++ {
			sum := b[j]
			for k := 0; k < in; k++ {
				sum += x[i*in+k] * w[k*out+j]
			}
			result[i*out+j] = sum
		}
	}
	return result
}

func layerNorm(row, gamma, beta []float64, eps float64) {
	mean := 0.0
	for _, v := range row {
		mean += v
	}
	mean /= float64(len(row))

	variance := 0.0
	for _, v := range row {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(row))

	invStd := 1.0 / math.Sqrt(variance+eps)
	for i, v := range row {
		row[i] = (v-mean)*invStd*gamma[i] + beta[i]
	}
}

func softmaxInPlace(x []float64) {
	maxVal := math.Inf(-1)
	for _, v := range x {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	for i, v := range x {
		x[i] = math.Exp(v - maxVal)
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}

func gelu(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

func frozenNormal(rng *rand.Rand, stdDev float64, dims ...int) *tensor.Tensor {
	t := tensor.NewTensor(dims, nil, false)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64() * stdDev
	}
	return t
}

func frozenOnes(dim int) *tensor.Tensor {
	t := tensor.NewTensor([]int{dim}, nil, false)
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}

func frozenZeros(dim int) *tensor.Tensor {
	return tensor.NewTensor([]int{dim}, nil, false)
}
