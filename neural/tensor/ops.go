package tensor

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Add performs element-wise addition of two tensors of identical shape.
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	if !compareShapes(t.Shape, other.Shape) {
		return nil, fmt.Errorf("mismatched shapes for Add operation: %v and %v", t.Shape, other.Shape)
	}

	resultData := make([]float64, len(t.Data))
	for i := range t.Data {
		resultData[i] = t.Data[i] + other.Data[i]
	}

	result := NewTensor(t.Shape, resultData, recording(t, other))
	if result.RequiresGrad {
		result.Creator = &AddOperation{A: t, B: other}
	}
	return result, nil
}

// AddOperation represents the addition operation for the backward pass.
type AddOperation struct {
	A *Tensor
	B *Tensor
}

func (op *AddOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.B}
}

func (op *AddOperation) Backward(grad *Tensor) error {
	if op.A.RequiresGrad {
		ensureGrad(op.A)
		for i := range grad.Data {
			op.A.Grad.Data[i] += grad.Data[i]
		}
	}
	if op.B.RequiresGrad {
		ensureGrad(op.B)
		for i := range grad.Data {
			op.B.Grad.Data[i] += grad.Data[i]
		}
	}
	return nil
}

// AddWithBroadcast adds a 1D bias of length cols to every row of a 2D tensor.
func (t *Tensor) AddWithBroadcast(bias *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 || len(bias.Shape) != 1 {
		return nil, fmt.Errorf("AddWithBroadcast expects a 2D tensor and a 1D bias, got %v and %v", t.Shape, bias.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	if bias.Shape[0] != cols {
		return nil, fmt.Errorf("bias length %d does not match column count %d", bias.Shape[0], cols)
	}

	resultData := make([]float64, len(t.Data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			resultData[i*cols+j] = t.Data[i*cols+j] + bias.Data[j]
		}
	}

	result := NewTensor(t.Shape, resultData, recording(t, bias))
	if result.RequiresGrad {
		result.Creator = &AddWithBroadcastOperation{A: t, Bias: bias}
	}
	return result, nil
}

// AddWithBroadcastOperation represents broadcast bias addition for the
// backward pass.
type AddWithBroadcastOperation struct {
	A    *Tensor
	Bias *Tensor
}

func (op *AddWithBroadcastOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.Bias}
}

func (op *AddWithBroadcastOperation) Backward(grad *Tensor) error {
	rows, cols := op.A.Shape[0], op.A.Shape[1]
	if op.A.RequiresGrad {
		ensureGrad(op.A)
		for i := range grad.Data {
			op.A.Grad.Data[i] += grad.Data[i]
		}
	}
	if op.Bias.RequiresGrad {
		ensureGrad(op.Bias)
		// The bias gradient is the output gradient summed over rows.
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				op.Bias.Grad.Data[j] += grad.Data[i*cols+j]
			}
		}
	}
	return nil
}

// MatMul performs 2D matrix multiplication with another tensor. Rows of the
// result are computed in parallel across CPU cores.
func (t *Tensor) MatMul(other *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 || len(other.Shape) != 2 {
		return nil, fmt.Errorf("MatMul supports 2D tensors only, got %v and %v", t.Shape, other.Shape)
	}
	if t.Shape[1] != other.Shape[0] {
		return nil, fmt.Errorf("incompatible shapes for matrix multiplication: %v and %v", t.Shape, other.Shape)
	}

	rowsA := t.Shape[0]
	colsA := t.Shape[1]
	colsB := other.Shape[1]
	resultData := make([]float64, rowsA*colsB)

	numWorkers := runtime.NumCPU()
	if numWorkers < 1 {
		numWorkers = 1
	}
	rowsPerWorker := (rowsA + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if endRow > rowsA {
			endRow = rowsA
		}
		if startRow >= endRow {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				for j := 0; j < colsB; j++ {
					sum := 0.0
					for k := 0; k < colsA; k++ {
						sum += t.Data[i*colsA+k] * other.Data[k*colsB+j]
					}
					resultData[i*colsB+j] = sum
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	result := NewTensor([]int{rowsA, colsB}, resultData, recording(t, other))
	if result.RequiresGrad {
		result.Creator = &MatMulOperation{A: t, B: other}
	}
	return result, nil
}

// MatMulOperation represents matrix multiplication for the backward pass.
type MatMulOperation struct {
	A *Tensor
	B *Tensor
}

func (op *MatMulOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.B}
}

func (op *MatMulOperation) Backward(grad *Tensor) error {
	rowsA, colsA := op.A.Shape[0], op.A.Shape[1]
	colsB := op.B.Shape[1]

	// dL/dA = grad @ B^T
	if op.A.RequiresGrad {
		ensureGrad(op.A)
		for i := 0; i < rowsA; i++ {
			for k := 0; k < colsA; k++ {
				sum := 0.0
				for j := 0; j < colsB; j++ {
					sum += grad.Data[i*colsB+j] * op.B.Data[k*colsB+j]
				}
				op.A.Grad.Data[i*colsA+k] += sum
			}
		}
	}

	// dL/dB = A^T @ grad
	if op.B.RequiresGrad {
		ensureGrad(op.B)
		for k := 0; k < colsA; k++ {
			for j := 0; j < colsB; j++ {
				sum := 0.0
				for i := 0; i < rowsA; i++ {
					sum += op.A.Data[i*colsA+k] * grad.Data[i*colsB+j]
				}
				op.B.Grad.Data[k*colsB+j] += sum
			}
		}
	}
	return nil
}

// Mul performs element-wise (Hadamard) multiplication of two tensors.
func (t *Tensor) Mul(other *Tensor) (*Tensor, error) {
	if !compareShapes(t.Shape, other.Shape) {
		return nil, fmt.Errorf("mismatched shapes for Mul operation: %v and %v", t.Shape, other.Shape)
	}

	resultData := make([]float64, len(t.Data))
	for i := range t.Data {
		resultData[i] = t.Data[i] * other.Data[i]
	}

	result := NewTensor(t.Shape, resultData, recording(t, other))
	if result.RequiresGrad {
		result.Creator = &MulOperation{A: t, B: other}
	}
	return result, nil
}

// MulOperation represents element-wise multiplication for the backward pass.
type MulOperation struct {
	A *Tensor
	B *Tensor
}

func (op *MulOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.B}
}

func (op *MulOperation) Backward(grad *Tensor) error {
	if op.A.RequiresGrad {
		ensureGrad(op.A)
		for i := range grad.Data {
			op.A.Grad.Data[i] += grad.Data[i] * op.B.Data[i]
		}
	}
	if op.B.RequiresGrad {
		ensureGrad(op.B)
		for i := range grad.Data {
			op.B.Grad.Data[i] += grad.Data[i] * op.A.Data[i]
		}
	}
	return nil
}

// MulScalar multiplies every element by a scalar value.
func (t *Tensor) MulScalar(val float64) (*Tensor, error) {
	resultData := make([]float64, len(t.Data))
	for i := range t.Data {
		resultData[i] = t.Data[i] * val
	}

	result := NewTensor(t.Shape, resultData, recording(t))
	if result.RequiresGrad {
		result.Creator = &MulScalarOperation{Input: t, Scalar: val}
	}
	return result, nil
}

// MulScalarOperation represents scalar multiplication for the backward pass.
type MulScalarOperation struct {
	Input  *Tensor
	Scalar float64
}

func (op *MulScalarOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *MulScalarOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	ensureGrad(op.Input)
	for i := range grad.Data {
		op.Input.Grad.Data[i] += grad.Data[i] * op.Scalar
	}
	return nil
}

// OneMinus computes 1 - x element-wise. Used for the GRU gate complement.
func (t *Tensor) OneMinus() (*Tensor, error) {
	resultData := make([]float64, len(t.Data))
	for i := range t.Data {
		resultData[i] = 1.0 - t.Data[i]
	}

	result := NewTensor(t.Shape, resultData, recording(t))
	if result.RequiresGrad {
		result.Creator = &OneMinusOperation{Input: t}
	}
	return result, nil
}

// OneMinusOperation represents the 1-x operation for the backward pass.
type OneMinusOperation struct {
	Input *Tensor
}

func (op *OneMinusOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *OneMinusOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	ensureGrad(op.Input)
	for i := range grad.Data {
		op.Input.Grad.Data[i] -= grad.Data[i]
	}
	return nil
}

// Sigmoid applies the logistic function element-wise.
func (t *Tensor) Sigmoid() (*Tensor, error) {
	resultData := make([]float64, len(t.Data))
	for i, val := range t.Data {
		resultData[i] = 1.0 / (1.0 + math.Exp(-val))
	}

	result := NewTensor(t.Shape, resultData, recording(t))
	if result.RequiresGrad {
		result.Creator = &SigmoidOperation{Input: t, Output: result}
	}
	return result, nil
}

// SigmoidOperation represents the sigmoid operation for the backward pass.
type SigmoidOperation struct {
	Input  *Tensor
	Output *Tensor
}

func (op *SigmoidOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *SigmoidOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	ensureGrad(op.Input)
	// d(sigmoid(x))/dx = sigmoid(x) * (1 - sigmoid(x))
	for i := range grad.Data {
		s := op.Output.Data[i]
		op.Input.Grad.Data[i] += grad.Data[i] * s * (1 - s)
	}
	return nil
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tensor) Tanh() (*Tensor, error) {
	resultData := make([]float64, len(t.Data))
	for i, val := range t.Data {
		resultData[i] = math.Tanh(val)
	}

	result := NewTensor(t.Shape, resultData, recording(t))
	if result.RequiresGrad {
		result.Creator = &TanhOperation{Input: t, Output: result}
	}
	return result, nil
}

// TanhOperation represents the tanh operation for the backward pass.
type TanhOperation struct {
	Input  *Tensor
	Output *Tensor
}

func (op *TanhOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *TanhOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	ensureGrad(op.Input)
	// d(tanh(x))/dx = 1 - tanh(x)^2
	for i := range grad.Data {
		th := op.Output.Data[i]
		op.Input.Grad.Data[i] += grad.Data[i] * (1 - th*th)
	}
	return nil
}

// Reshape returns a tensor viewing the same elements under a new shape.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if Size(newShape) != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape tensor of size %d to shape %v", len(t.Data), newShape)
	}

	resultData := make([]float64, len(t.Data))
	copy(resultData, t.Data)

	result := NewTensor(newShape, resultData, recording(t))
	if result.RequiresGrad {
		result.Creator = &ReshapeOperation{Input: t}
	}
	return result, nil
}

// ReshapeOperation represents the reshape operation for the backward pass.
type ReshapeOperation struct {
	Input *Tensor
}

func (op *ReshapeOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *ReshapeOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	ensureGrad(op.Input)
	for i := range grad.Data {
		op.Input.Grad.Data[i] += grad.Data[i]
	}
	return nil
}

// Concat concatenates tensors along the given axis. All shapes must match on
// every other axis.
func Concat(tensors []*Tensor, axis int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("Concat requires at least one tensor")
	}
	if axis < 0 || axis >= len(tensors[0].Shape) {
		return nil, fmt.Errorf("axis %d out of bounds for tensor with shape %v", axis, tensors[0].Shape)
	}

	newShape := make([]int, len(tensors[0].Shape))
	copy(newShape, tensors[0].Shape)
	concatDimSize := 0
	for i, t := range tensors {
		if i > 0 && !compareShapesExceptAxis(tensors[0].Shape, t.Shape, axis) {
			return nil, fmt.Errorf("mismatched shapes for concatenation along axis %d: %v and %v", axis, tensors[0].Shape, t.Shape)
		}
		concatDimSize += t.Shape[axis]
	}
	newShape[axis] = concatDimSize

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= newShape[i]
	}
	inner := 1
	for i := axis + 1; i < len(newShape); i++ {
		inner *= newShape[i]
	}

	resultData := make([]float64, Size(newShape))
	offset := 0
	for _, t := range tensors {
		mid := t.Shape[axis]
		for o := 0; o < outer; o++ {
			src := t.Data[o*mid*inner : (o+1)*mid*inner]
			dst := resultData[(o*concatDimSize+offset)*inner:]
			copy(dst[:mid*inner], src)
		}
		offset += mid
	}

	result := NewTensor(newShape, resultData, recording(tensors...))
	if result.RequiresGrad {
		result.Creator = &ConcatOperation{InputTensors: tensors, Axis: axis}
	}
	return result, nil
}

// ConcatOperation represents the concatenation operation for the backward
// pass.
type ConcatOperation struct {
	InputTensors []*Tensor
	Axis         int
}

func (op *ConcatOperation) Inputs() []*Tensor {
	return op.InputTensors
}

func (op *ConcatOperation) Backward(grad *Tensor) error {
	concatDimSize := grad.Shape[op.Axis]
	outer := 1
	for i := 0; i < op.Axis; i++ {
		outer *= grad.Shape[i]
	}
	inner := 1
	for i := op.Axis + 1; i < len(grad.Shape); i++ {
		inner *= grad.Shape[i]
	}

	offset := 0
	for _, input := range op.InputTensors {
		mid := input.Shape[op.Axis]
		if input.RequiresGrad {
			ensureGrad(input)
			for o := 0; o < outer; o++ {
				for m := 0; m < mid; m++ {
					for in := 0; in < inner; in++ {
						input.Grad.Data[(o*mid+m)*inner+in] += grad.Data[(o*concatDimSize+offset+m)*inner+in]
					}
				}
			}
		}
		offset += mid
	}
	return nil
}

// TimeStep extracts step index along axis 1 of a [batch, seq, dim] tensor as
// a [batch, dim] tensor. The result is detached: it is only ever used to pull
// inputs out of the frozen encoder's output, which carries no gradients.
func (t *Tensor) TimeStep(step int) (*Tensor, error) {
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("TimeStep expects a 3D tensor, got shape %v", t.Shape)
	}
	batch, seq, dim := t.Shape[0], t.Shape[1], t.Shape[2]
	if step < 0 || step >= seq {
		return nil, fmt.Errorf("step %d out of range for sequence length %d", step, seq)
	}

	resultData := make([]float64, batch*dim)
	for b := 0; b < batch; b++ {
		copy(resultData[b*dim:(b+1)*dim], t.Data[(b*seq+step)*dim:(b*seq+step+1)*dim])
	}
	return NewTensor([]int{batch, dim}, resultData, false), nil
}
