package fraud

import "math"

// Model is a linear scoring model over the named risk factor scores,
// squashed to a fraud probability with a sigmoid.
type Model struct {
	weights map[string]float64
	bias    float64
}

// NewModel returns a model with pre-trained weights.
func NewModel() *Model {
	return &Model{
		weights: map[string]float64{
			FactorVelocity: 0.3,
			FactorAmount:   0.25,
			FactorLocation: 0.2,
			FactorDevice:   0.15,
			FactorBehavior: 0.1,
		},
		bias: -0.5,
	}
}

// Predict returns a fraud probability in [0, 1].
func (m *Model) Predict(features map[string]float64) float64 {
	score := m.bias
	for feature, value := range features {
		if weight, exists := m.weights[feature]; exists {
			score += weight * value
		}
	}
	return sigmoid(score)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
