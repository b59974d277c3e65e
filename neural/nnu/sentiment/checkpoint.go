package sentiment

import (
	"encoding/gob"
	"os"

	"github.com/pkg/errors"

	"github.com/golangast/sentimenter/neural/tensor"
)

// SaveCheckpoint writes the named trainable parameters to a single gob file,
// overwriting whatever best snapshot was there before. Exactly one "best"
// checkpoint exists at any time.
func SaveCheckpoint(path string, params map[string]*tensor.Tensor) error {
	// Detached views are enough here: gob consumes them before this function
	// returns, so later training steps cannot reach the file.
	snapshot := make(map[string]*tensor.Tensor, len(params))
	for name, p := range params {
		snapshot[name] = p.Detach()
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating checkpoint file")
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snapshot); err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	return nil
}

// LoadCheckpoint restores parameter values from a checkpoint file into the
// given parameter group, in place. Tensors keep their identity, so an
// optimizer or model holding references sees the restored values. A missing
// file, a missing parameter, or a shape mismatch is a fatal error.
func LoadCheckpoint(path string, params map[string]*tensor.Tensor) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening checkpoint file")
	}
	defer f.Close()

	var snapshot map[string]*tensor.Tensor
	if err := gob.NewDecoder(f).Decode(&snapshot); err != nil {
		return errors.Wrap(err, "decoding checkpoint")
	}

	for name, p := range params {
		stored, ok := snapshot[name]
		if !ok {
			return errors.Errorf("checkpoint is missing parameter %q", name)
		}
		if !sameShape(stored.Shape, p.Shape) || len(stored.Data) != len(p.Data) {
			return errors.Errorf("checkpoint parameter %q has shape %v, want %v", name, stored.Shape, p.Shape)
		}
		copy(p.Data, stored.Data)
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
