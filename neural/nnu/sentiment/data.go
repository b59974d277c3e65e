package sentiment

import (
	"math/rand"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/golangast/sentimenter/neural/tokenizer"
)

// Review is one labeled movie review as stored on disk.
type Review struct {
	Text  string `csv:"text"`
	Label int    `csv:"label"`
}

// LoadReviews reads a CSV file with text,label columns. Labels must be 0
// (negative) or 1 (positive).
func LoadReviews(path string) ([]Review, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening dataset file")
	}
	defer f.Close()

	var reviews []Review
	if err := gocsv.UnmarshalFile(f, &reviews); err != nil {
		return nil, errors.Wrapf(err, "parsing dataset file %s", path)
	}
	for i, r := range reviews {
		if r.Label != 0 && r.Label != 1 {
			return nil, errors.Errorf("row %d has label %d, want 0 or 1", i, r.Label)
		}
	}
	return reviews, nil
}

// SplitReviews shuffles a copy of reviews and splits off validFraction of
// them as a validation set.
func SplitReviews(reviews []Review, validFraction float64, rng *rand.Rand) (train, valid []Review, err error) {
	if validFraction <= 0 || validFraction >= 1 {
		return nil, nil, errors.Errorf("validation fraction must be in (0, 1), got %v", validFraction)
	}
	shuffled := make([]Review, len(reviews))
	copy(shuffled, reviews)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(float64(len(shuffled)) * (1 - validFraction))
	return shuffled[:cut], shuffled[cut:], nil
}

// Example is one encoded training example: a bounded token-id sequence,
// already wrapped with the begin/end markers, and its binary label.
type Example struct {
	IDs   []int
	Label float64
}

// EncodeReviews tokenizes and encodes every review under the length bound.
func EncodeReviews(wp *tokenizer.WordPiece, reviews []Review, maxLen int) []Example {
	examples := make([]Example, len(reviews))
	for i, r := range reviews {
		examples[i] = Example{
			IDs:   wp.Encode(r.Text, maxLen),
			Label: float64(r.Label),
		}
	}
	return examples
}

// Batch is a fixed group of examples padded to the batch's longest sequence.
// The pad id doubles as the padding mask.
type Batch struct {
	IDs    [][]int
	Labels []float64
}

// BatchIterator groups examples into batches. When shuffle is set, the
// example order is redrawn on every Batches call, giving a fresh epoch order.
type BatchIterator struct {
	examples  []Example
	batchSize int
	padID     int
	shuffle   bool
	rng       *rand.Rand
}

// NewBatchIterator creates an iterator over examples.
func NewBatchIterator(examples []Example, batchSize, padID int, shuffle bool, rng *rand.Rand) (*BatchIterator, error) {
	if len(examples) == 0 {
		return nil, errors.New("cannot iterate over an empty example set")
	}
	if batchSize < 1 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if shuffle && rng == nil {
		return nil, errors.New("a shuffling iterator needs a random source")
	}
	return &BatchIterator{
		examples:  examples,
		batchSize: batchSize,
		padID:     padID,
		shuffle:   shuffle,
		rng:       rng,
	}, nil
}

// Len returns the number of batches per epoch.
func (it *BatchIterator) Len() int {
	return (len(it.examples) + it.batchSize - 1) / it.batchSize
}

// Batches returns one epoch's worth of padded batches. The last batch may be
// smaller than the configured batch size.
func (it *BatchIterator) Batches() []Batch {
	if it.shuffle {
		it.rng.Shuffle(len(it.examples), func(i, j int) {
			it.examples[i], it.examples[j] = it.examples[j], it.examples[i]
		})
	}

	batches := make([]Batch, 0, it.Len())
	for start := 0; start < len(it.examples); start += it.batchSize {
		end := start + it.batchSize
		if end > len(it.examples) {
			end = len(it.examples)
		}
		batches = append(batches, it.pad(it.examples[start:end]))
	}
	return batches
}

func (it *BatchIterator) pad(examples []Example) Batch {
	maxLen := 0
	for _, ex := range examples {
		if len(ex.IDs) > maxLen {
			maxLen = len(ex.IDs)
		}
	}

	batch := Batch{
		IDs:    make([][]int, len(examples)),
		Labels: make([]float64, len(examples)),
	}
	for i, ex := range examples {
		row := make([]int, maxLen)
		copy(row, ex.IDs)
		for j := len(ex.IDs); j < maxLen; j++ {
			row[j] = it.padID
		}
		batch.IDs[i] = row
		batch.Labels[i] = ex.Label
	}
	return batch
}
