package sentiment

import (
	"math"

	"github.com/pkg/errors"

	"github.com/golangast/sentimenter/neural/tokenizer"
)

// PredictSentiment classifies one raw review and returns the probability in
// [0, 1] that it is positive. The text is tokenized, silently truncated to
// the model's length bound, wrapped with the begin/end markers, and run as a
// batch of one in evaluation mode. The empty string is valid input: it
// encodes to just the two markers.
func PredictSentiment(m *Model, wp *tokenizer.WordPiece, text string) (float64, error) {
	ids := wp.Encode(text, m.Config().MaxLen)

	logits, err := m.Forward([][]int{ids}, false)
	if err != nil {
		return 0, errors.Wrap(err, "classifying text")
	}
	return 1.0 / (1.0 + math.Exp(-logits.Data[0])), nil
}
