package nn

import (
	"math"

	"github.com/golangast/sentimenter/neural/tensor"
)

// Optimizer interface defines the contract for optimizers.
type Optimizer interface {
	Step()
	ZeroGrad()
}

// Adam represents the Adam optimizer. It owns exactly the trainable
// parameter group it was constructed over; frozen parameters never enter it.
type Adam struct {
	parameters   []*tensor.Tensor
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64
	t            int
	m            map[*tensor.Tensor]*tensor.Tensor // 1st moment vector
	v            map[*tensor.Tensor]*tensor.Tensor // 2nd moment vector
	clipValue    float64
}

// NewAdam creates a new Adam optimizer over the given parameters. clipValue
// bounds each gradient component; pass 0 to disable clipping.
func NewAdam(parameters []*tensor.Tensor, learningRate, clipValue float64) *Adam {
	return &Adam{
		parameters:   parameters,
		learningRate: learningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-8,
		m:            make(map[*tensor.Tensor]*tensor.Tensor),
		v:            make(map[*tensor.Tensor]*tensor.Tensor),
		clipValue:    clipValue,
	}
}

// Step performs a single optimization step.
func (o *Adam) Step() {
	o.t++
	for _, p := range o.parameters {
		if p.Grad == nil {
			continue
		}
		if _, ok := o.m[p]; !ok {
			o.m[p] = tensor.NewTensor(p.Shape, nil, false)
			o.v[p] = tensor.NewTensor(p.Shape, nil, false)
		}

		if o.clipValue > 0 {
			for i := range p.Grad.Data {
				if p.Grad.Data[i] > o.clipValue {
					p.Grad.Data[i] = o.clipValue
				} else if p.Grad.Data[i] < -o.clipValue {
					p.Grad.Data[i] = -o.clipValue
				}
			}
		}

		m := o.m[p]
		v := o.v[p]
		correction1 := 1 - math.Pow(o.beta1, float64(o.t))
		correction2 := 1 - math.Pow(o.beta2, float64(o.t))

		for i := range p.Data {
			g := p.Grad.Data[i]
			m.Data[i] = o.beta1*m.Data[i] + (1-o.beta1)*g
			v.Data[i] = o.beta2*v.Data[i] + (1-o.beta2)*g*g

			mHat := m.Data[i] / correction1
			vHat := v.Data[i] / correction2
			p.Data[i] -= o.learningRate * mHat / (math.Sqrt(vHat) + o.epsilon)
		}
	}
}

// ZeroGrad resets the gradients of all parameters.
func (o *Adam) ZeroGrad() {
	for _, p := range o.parameters {
		p.ZeroGrad()
	}
}
