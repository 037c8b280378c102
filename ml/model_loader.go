package ml

import "fmt"

const (
	KindARIMA        = "arima"
	KindDecisionTree = "decision_tree"
)

// LoadModel reads a saved model of the given kind from path.
func LoadModel(modelType, path string) (MLModel, error) {
	switch modelType {
	case KindARIMA:
		model := &ARIMA{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	case KindDecisionTree:
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
