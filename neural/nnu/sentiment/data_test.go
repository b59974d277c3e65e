package sentiment

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golangast/sentimenter/neural/tokenizer"
)

func testTokenizer(t *testing.T) *tokenizer.WordPiece {
	t.Helper()
	wp, err := tokenizer.New([]string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"great", "movie", "loved", "it", "terrible", "hated", "boring", "fun", ",", ".",
	})
	require.NoError(t, err)
	return wp
}

func TestLoadReviews(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews.csv")
	content := "text,label\ngreat movie,1\nterrible movie,0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reviews, err := LoadReviews(path)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "great movie", reviews[0].Text)
	assert.Equal(t, 1, reviews[0].Label)
	assert.Equal(t, 0, reviews[1].Label)
}

func TestLoadReviewsRejectsBadLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews.csv")
	content := "text,label\ngreat movie,2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadReviews(path)
	require.Error(t, err)
}

func TestSplitReviews(t *testing.T) {
	reviews := make([]Review, 10)
	for i := range reviews {
		reviews[i].Label = i % 2
	}

	train, valid, err := SplitReviews(reviews, 0.3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, train, 7)
	assert.Len(t, valid, 3)

	_, _, err = SplitReviews(reviews, 1.5, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}

func TestEncodeReviews(t *testing.T) {
	wp := testTokenizer(t)
	examples := EncodeReviews(wp, []Review{
		{Text: "great movie", Label: 1},
		{Text: "", Label: 0},
	}, 512)

	require.Len(t, examples, 2)
	assert.Equal(t, []int{wp.ClsID(), 4, 5, wp.SepID()}, examples[0].IDs)
	assert.Equal(t, 1.0, examples[0].Label)
	assert.Equal(t, []int{wp.ClsID(), wp.SepID()}, examples[1].IDs)
}

func TestBatchIteratorPadsToBatchLongest(t *testing.T) {
	examples := []Example{
		{IDs: []int{2, 4, 3}, Label: 1},
		{IDs: []int{2, 4, 5, 6, 3}, Label: 0},
	}
	it, err := NewBatchIterator(examples, 2, 0, false, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	batches := it.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []int{2, 4, 3, 0, 0}, batches[0].IDs[0])
	assert.Equal(t, []int{2, 4, 5, 6, 3}, batches[0].IDs[1])
	assert.Equal(t, []float64{1, 0}, batches[0].Labels)
}

func TestBatchIteratorLastBatchMaySmaller(t *testing.T) {
	examples := make([]Example, 5)
	for i := range examples {
		examples[i] = Example{IDs: []int{2, 3}}
	}
	it, err := NewBatchIterator(examples, 2, 0, false, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	batches := it.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, 3, it.Len())
	assert.Len(t, batches[2].IDs, 1)
}

func TestBatchIteratorShufflesBetweenEpochs(t *testing.T) {
	examples := make([]Example, 64)
	for i := range examples {
		examples[i] = Example{IDs: []int{i}, Label: float64(i % 2)}
	}
	it, err := NewBatchIterator(examples, 8, 0, true, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	first := it.Batches()
	second := it.Batches()

	different := false
	for b := range first {
		for r := range first[b].IDs {
			if first[b].IDs[r][0] != second[b].IDs[r][0] {
				different = true
			}
		}
	}
	assert.True(t, different, "two epochs should see different example orders")
}

func TestNewBatchIteratorRejectsEmpty(t *testing.T) {
	_, err := NewBatchIterator(nil, 2, 0, false, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}
