package sentiment

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/golangast/sentimenter/neural/nn"
	"github.com/golangast/sentimenter/neural/tensor"
)

// BinaryAccuracy returns the fraction of logits whose rounded sigmoid equals
// the label. Rounding is math.Round, half away from zero: a logit of exactly
// 0 (probability 0.5) counts as a positive prediction.
func BinaryAccuracy(logits *tensor.Tensor, labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	correct := 0.0
	for i, label := range labels {
		prob := 1.0 / (1.0 + math.Exp(-logits.Data[i]))
		if math.Round(prob) == label {
			correct++
		}
	}
	return correct / float64(len(labels))
}

// TrainEpoch runs one full pass over the training batches: forward, loss,
// backward, one optimizer step per batch. It returns the unweighted mean of
// per-batch loss and accuracy; a final short batch counts the same as a full
// one. A non-finite batch loss aborts the epoch instead of poisoning the
// running metrics.
func TrainEpoch(m *Model, it *BatchIterator, opt nn.Optimizer) (float64, float64, error) {
	var losses, accs []float64

	for i, batch := range it.Batches() {
		opt.ZeroGrad()

		logits, err := m.Forward(batch.IDs, true)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "training batch %d", i)
		}

		loss, grad, err := nn.BCEWithLogitsLoss(logits, batch.Labels)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "training batch %d", i)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, 0, errors.Errorf("training diverged: loss is %v at batch %d", loss, i)
		}

		if err := logits.Backward(grad); err != nil {
			return 0, 0, errors.Wrapf(err, "training batch %d", i)
		}
		opt.Step()

		losses = append(losses, loss)
		accs = append(accs, BinaryAccuracy(logits, batch.Labels))
	}

	return meanPair(losses, accs)
}

// Evaluate runs a forward-only pass over the batches in evaluation mode: no
// dropout, no gradients, no parameter mutation. It serves both per-epoch
// validation and the final test evaluation.
func Evaluate(m *Model, it *BatchIterator) (float64, float64, error) {
	var losses, accs []float64

	for i, batch := range it.Batches() {
		logits, err := m.Forward(batch.IDs, false)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "evaluation batch %d", i)
		}

		loss, _, err := nn.BCEWithLogitsLoss(logits, batch.Labels)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "evaluation batch %d", i)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, 0, errors.Errorf("evaluation produced a non-finite loss at batch %d", i)
		}

		losses = append(losses, loss)
		accs = append(accs, BinaryAccuracy(logits, batch.Labels))
	}

	return meanPair(losses, accs)
}

func meanPair(losses, accs []float64) (float64, float64, error) {
	meanLoss, err := stats.Mean(losses)
	if err != nil {
		return 0, 0, errors.Wrap(err, "averaging batch losses")
	}
	meanAcc, err := stats.Mean(accs)
	if err != nil {
		return 0, 0, errors.Wrap(err, "averaging batch accuracies")
	}
	return meanLoss, meanAcc, nil
}

func epochTime(elapsed time.Duration) (mins, secs int) {
	total := int(elapsed.Seconds())
	return total / 60, total % 60
}

// checkpointer owns the single best-snapshot slot. The slot is overwritten
// only when validation loss strictly improves on the best seen, so the loss
// associated with the stored snapshot is non-increasing over a run.
type checkpointer struct {
	path string
	best float64
}

func newCheckpointer(path string) *checkpointer {
	return &checkpointer{path: path, best: math.Inf(1)}
}

// observe reports whether validLoss strictly improved on the best seen and,
// when it did, persists params to the checkpoint slot.
func (c *checkpointer) observe(validLoss float64, params map[string]*tensor.Tensor) (bool, error) {
	if validLoss >= c.best {
		return false, nil
	}
	c.best = validLoss
	return true, SaveCheckpoint(c.path, params)
}

// RunResult summarizes a completed training run.
type RunResult struct {
	BestValidLoss float64
	TestLoss      float64
	TestAccuracy  float64
}

// Run trains the model for the configured number of epochs, validating after
// each one. The checkpoint is overwritten whenever validation loss strictly
// improves on the best seen; after the last epoch the best snapshot is
// restored and the test set is evaluated once.
func Run(m *Model, trainIt, validIt, testIt *BatchIterator, checkpointPath string) (RunResult, error) {
	cfg := m.Config()
	opt := nn.NewAdam(m.Parameters(), cfg.LearningRate, cfg.GradClip)

	count := 0
	for _, p := range m.Parameters() {
		count += len(p.Data)
	}
	fmt.Printf("The model has %s trainable parameters\n", humanize.Comma(int64(count)))

	ckpt := newCheckpointer(checkpointPath)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		start := time.Now()

		trainLoss, trainAcc, err := TrainEpoch(m, trainIt, opt)
		if err != nil {
			return RunResult{}, errors.Wrapf(err, "epoch %d", epoch+1)
		}
		validLoss, validAcc, err := Evaluate(m, validIt)
		if err != nil {
			return RunResult{}, errors.Wrapf(err, "epoch %d validation", epoch+1)
		}

		mins, secs := epochTime(time.Since(start))

		if _, err := ckpt.observe(validLoss, m.NamedParameters()); err != nil {
			return RunResult{}, errors.Wrapf(err, "epoch %d checkpoint", epoch+1)
		}

		fmt.Printf("Epoch: %02d | Epoch Time: %dm %ds\n", epoch+1, mins, secs)
		fmt.Printf("\tTrain Loss: %.3f | Train Acc: %.2f%%\n", trainLoss, trainAcc*100)
		fmt.Printf("\tVal. Loss: %.3f |  Val. Acc: %.2f%%\n", validLoss, validAcc*100)
	}

	if err := LoadCheckpoint(checkpointPath, m.NamedParameters()); err != nil {
		return RunResult{}, errors.Wrap(err, "restoring best checkpoint")
	}

	testLoss, testAcc, err := Evaluate(m, testIt)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "test evaluation")
	}
	fmt.Printf("Test Loss: %.3f | Test Acc: %.2f%%\n", testLoss, testAcc*100)

	return RunResult{
		BestValidLoss: ckpt.best,
		TestLoss:      testLoss,
		TestAccuracy:  testAcc,
	}, nil
}
