// Package predict turns loaded models into enrollment forecasts and
// dropout risk assessments.
package predict

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	ModelTypeARIMA        = "ARIMA"
	ModelTypeDecisionTree = "Decision Tree"
)

// PredictionError is the failure variant of a component result. It is
// reported to callers as-is, always with zero confidence.
type PredictionError struct {
	ModelType  string  `json:"model_type"`
	Message    string  `json:"error"`
	Confidence float64 `json:"confidence"`
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("%s prediction failed: %s", e.ModelType, e.Message)
}

func newPredictionError(modelType string, err error) *PredictionError {
	return &PredictionError{ModelType: modelType, Message: err.Error()}
}

// recoverInto converts a panic raised while predicting into a
// PredictionError stored in *errp.
func recoverInto(logger *zap.Logger, modelType string, errp *error) {
	if r := recover(); r != nil {
		logger.Error("Panic during prediction", zap.String("model_type", modelType), zap.Any("panic", r))
		*errp = &PredictionError{ModelType: modelType, Message: fmt.Sprint(r)}
	}
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
