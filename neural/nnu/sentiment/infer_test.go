package sentiment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictSentimentEmptyString(t *testing.T) {
	m, err := NewModel(tinyEncoder(t), tinyConfig())
	require.NoError(t, err)
	wp := testTokenizer(t)

	prob, err := PredictSentiment(m, wp, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prob, 0.0)
	assert.LessOrEqual(t, prob, 1.0)
}

// Inputs past the length bound are silently truncated to MaxLen-2 content
// tokens plus the two markers; inference must not fail on them.
func TestPredictSentimentLongInput(t *testing.T) {
	m, err := NewModel(tinyEncoder(t), tinyConfig())
	require.NoError(t, err)
	wp := testTokenizer(t)

	long := strings.Repeat("great movie ", 100)
	ids := wp.Encode(long, m.Config().MaxLen)
	assert.Len(t, ids, m.Config().MaxLen)

	prob, err := PredictSentiment(m, wp, long)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prob, 0.0)
	assert.LessOrEqual(t, prob, 1.0)
}

// Inference runs in evaluation mode: repeated calls on the same input and
// parameters return the same probability.
func TestPredictSentimentDeterministic(t *testing.T) {
	m, err := NewModel(tinyEncoder(t), tinyConfig())
	require.NoError(t, err)
	wp := testTokenizer(t)

	first, err := PredictSentiment(m, wp, "great movie")
	require.NoError(t, err)
	second, err := PredictSentiment(m, wp, "great movie")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
