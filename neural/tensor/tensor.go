package tensor

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Operation represents a node in the computation graph. Every differentiable
// op records one on its output so Backward can walk the graph.
type Operation interface {
	Inputs() []*Tensor
	Backward(grad *Tensor) error
}

// Tensor represents a multi-dimensional array of float64 values.
type Tensor struct {
	Data         []float64
	Shape        []int
	Grad         *Tensor   `gob:"-"`
	Creator      Operation `gob:"-"`
	RequiresGrad bool
}

// NewTensor creates a new Tensor with the given shape and optional data.
// Passing nil data allocates a zeroed buffer of the right size.
func NewTensor(shape []int, data []float64, requiresGrad bool) *Tensor {
	if data == nil {
		data = make([]float64, Size(shape))
	}
	return &Tensor{
		Data:         data,
		Shape:        shape,
		RequiresGrad: requiresGrad,
	}
}

// Size returns the number of elements a tensor of the given shape holds.
func Size(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

// GobEncode implements the gob.GobEncoder interface. Gradients and the
// computation graph are deliberately not serialized; a decoded tensor is a
// fresh leaf.
func (t *Tensor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(t.Data); err != nil {
		return nil, err
	}
	if err := enc.Encode(t.Shape); err != nil {
		return nil, err
	}
	if err := enc.Encode(t.RequiresGrad); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface.
func (t *Tensor) GobDecode(data []byte) error {
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	if err := dec.Decode(&t.Data); err != nil {
		return err
	}
	if err := dec.Decode(&t.Shape); err != nil {
		return err
	}
	if err := dec.Decode(&t.RequiresGrad); err != nil {
		return err
	}
	t.Grad = nil
	t.Creator = nil
	return nil
}

// Clone creates a deep copy of the tensor. The clone is a new leaf in the
// graph: it shares no gradient and has no creator.
func (t *Tensor) Clone() *Tensor {
	newData := make([]float64, len(t.Data))
	copy(newData, t.Data)
	newShape := make([]int, len(t.Shape))
	copy(newShape, t.Shape)
	return &Tensor{
		Data:         newData,
		Shape:        newShape,
		RequiresGrad: t.RequiresGrad,
	}
}

// ZeroGrad resets the gradient of the tensor to zeros.
func (t *Tensor) ZeroGrad() {
	if !t.RequiresGrad {
		return
	}
	if t.Grad == nil {
		t.Grad = NewTensor(t.Shape, nil, false)
		return
	}
	for i := range t.Grad.Data {
		t.Grad.Data[i] = 0
	}
}

// Detach returns a view of the tensor's data cut off from the graph and from
// gradient tracking.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{Data: t.Data, Shape: t.Shape}
}

// gradTracking gates creator recording globally. Training and evaluation run
// on one goroutine, so a plain bool suffices.
var gradTracking = true

// NoGrad runs fn with graph recording disabled: ops executed inside produce
// leaf tensors regardless of their inputs' RequiresGrad flags. Used for
// evaluation and inference passes, which never run a backward pass.
func NoGrad(fn func() error) error {
	gradTracking = false
	defer func() { gradTracking = true }()
	return fn()
}

// recording reports whether an op over the given inputs should record a
// creator on its output.
func recording(inputs ...*Tensor) bool {
	if !gradTracking {
		return false
	}
	for _, in := range inputs {
		if in.RequiresGrad {
			return true
		}
	}
	return false
}

// Backward runs reverse-mode differentiation from t, seeding with grad.
// The graph is walked once in reverse topological order; gradients
// accumulate into every reachable tensor with RequiresGrad set.
func (t *Tensor) Backward(grad *Tensor) error {
	if grad == nil {
		return fmt.Errorf("Backward requires a seed gradient")
	}
	if len(grad.Data) != len(t.Data) {
		return fmt.Errorf("seed gradient size %d does not match tensor size %d", len(grad.Data), len(t.Data))
	}

	// Post-order DFS: every tensor lands in topo after all of its inputs, so
	// walking topo backwards visits each tensor only after every consumer has
	// already contributed its share of the gradient.
	type frame struct {
		t *Tensor
		i int
	}
	topo := []*Tensor{}
	visited := map[*Tensor]bool{t: true}
	stack := []frame{{t: t}}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		var inputs []*Tensor
		if f.t.Creator != nil {
			inputs = f.t.Creator.Inputs()
		}
		if f.i < len(inputs) {
			child := inputs[f.i]
			f.i++
			if child != nil && !visited[child] {
				visited[child] = true
				stack = append(stack, frame{t: child})
			}
			continue
		}
		topo = append(topo, f.t)
		stack = stack[:len(stack)-1]
	}

	// Seed the output gradient.
	if t.Grad == nil {
		t.Grad = NewTensor(t.Shape, nil, false)
	}
	copy(t.Grad.Data, grad.Data)

	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		if v.Creator == nil {
			continue
		}
		if v.Grad == nil {
			v.Grad = NewTensor(v.Shape, nil, false)
		}
		if err := v.Creator.Backward(v.Grad); err != nil {
			return fmt.Errorf("backward pass failed at tensor with shape %v: %w", v.Shape, err)
		}
	}
	return nil
}

// compareShapes is a helper function to compare two shapes.
func compareShapes(s1, s2 []int) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			return false
		}
	}
	return true
}

// compareShapesExceptAxis compares two shapes ignoring a specific axis.
func compareShapesExceptAxis(s1, s2 []int, ignoredAxis int) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i := range s1 {
		if i == ignoredAxis {
			continue
		}
		if s1[i] != s2[i] {
			return false
		}
	}
	return true
}

func ensureGrad(t *Tensor) {
	if t.Grad == nil {
		t.Grad = NewTensor(t.Shape, nil, false)
	}
}
