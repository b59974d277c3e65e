package bert

import "fmt"

// Config holds the architecture of a pretrained encoder.
type Config struct {
	VocabSize             int
	HiddenSize            int
	NumHiddenLayers       int
	NumAttentionHeads     int
	IntermediateSize      int
	MaxPositionEmbeddings int
	LayerNormEps          float64
	InitializerRange      float64
}

// BaseUncasedConfig returns the configuration of bert-base-uncased.
func BaseUncasedConfig() Config {
	return Config{
		VocabSize:             30522,
		HiddenSize:            768,
		NumHiddenLayers:       12,
		NumAttentionHeads:     12,
		IntermediateSize:      3072,
		MaxPositionEmbeddings: 512,
		LayerNormEps:          1e-12,
		InitializerRange:      0.02,
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.VocabSize <= 0 || c.HiddenSize <= 0 || c.NumHiddenLayers <= 0 {
		return fmt.Errorf("invalid encoder config: vocab %d, hidden %d, layers %d", c.VocabSize, c.HiddenSize, c.NumHiddenLayers)
	}
	if c.NumAttentionHeads <= 0 || c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("hidden size %d is not divisible by %d attention heads", c.HiddenSize, c.NumAttentionHeads)
	}
	if c.IntermediateSize <= 0 || c.MaxPositionEmbeddings <= 0 {
		return fmt.Errorf("invalid encoder config: intermediate %d, max positions %d", c.IntermediateSize, c.MaxPositionEmbeddings)
	}
	return nil
}
