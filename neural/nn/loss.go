package nn

import (
	"fmt"
	"math"

	"github.com/golangast/sentimenter/neural/tensor"
)

// BCEWithLogitsLoss computes the binary cross-entropy between a 1D tensor of
// logits and 0/1 labels, averaged over the batch. It returns the scalar loss
// and the gradient of the loss with respect to the logits, ready to seed
// logits.Backward.
//
// The loss is computed in the numerically stable form
//
//	max(x, 0) - x*y + log(1 + exp(-|x|))
//
// so large-magnitude logits cannot overflow.
func BCEWithLogitsLoss(logits *tensor.Tensor, labels []float64) (float64, *tensor.Tensor, error) {
	if len(logits.Shape) != 1 {
		return 0, nil, fmt.Errorf("BCEWithLogitsLoss expects 1D logits, got shape %v", logits.Shape)
	}
	if logits.Shape[0] != len(labels) {
		return 0, nil, fmt.Errorf("mismatched logits and labels: %d vs %d", logits.Shape[0], len(labels))
	}
	n := len(labels)
	if n == 0 {
		return 0, nil, fmt.Errorf("BCEWithLogitsLoss received an empty batch")
	}

	loss := 0.0
	gradData := make([]float64, n)
	for i := 0; i < n; i++ {
		x := logits.Data[i]
		y := labels[i]

		loss += math.Max(x, 0) - x*y + math.Log1p(math.Exp(-math.Abs(x)))

		sigmoid := 1.0 / (1.0 + math.Exp(-x))
		gradData[i] = (sigmoid - y) / float64(n)
	}
	loss /= float64(n)

	return loss, tensor.NewTensor(logits.Shape, gradData, false), nil
}
