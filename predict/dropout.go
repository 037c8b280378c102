package predict

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"edupredict/ml"
	"edupredict/store"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "BAJO"
	RiskMedium RiskLevel = "MEDIO"
	RiskHigh   RiskLevel = "ALTO"
)

// Color is the frontend badge style for the level.
func (r RiskLevel) Color() string {
	switch r {
	case RiskHigh:
		return "danger"
	case RiskMedium:
		return "warning"
	default:
		return "success"
	}
}

const (
	highRiskClass = 1

	// below this winning probability the class is reported as MEDIO
	mediumRiskCutoff = 0.70

	defaultModelAccuracy   = 0.80
	defaultHighRiskDropout = 8.0
	defaultLowRiskDropout  = 4.0
)

var errClassifierMissing = errors.New("Decision Tree model not loaded. Please run train_model first")

type DropoutRequest struct {
	ml.SchoolFeatures
}

type ClassProbabilities struct {
	LowRisk  float64 `json:"low_risk"`
	HighRisk float64 `json:"high_risk"`
}

type FeatureAnalysis struct {
	StudentTeacherRatio float64 `json:"student_teacher_ratio"`
	EnrollmentRate      float64 `json:"enrollment_rate"`
	GradeCategory       string  `json:"grade_category"`
	SchoolSizeCategory  string  `json:"school_size_category"`
}

// TreeModelInfo falls back to "N/A" and "Unknown" without metadata.
type TreeModelInfo struct {
	TrainingAccuracy any `json:"training_accuracy"`
	TrainingDate     any `json:"training_date"`
}

type DropoutAssessment struct {
	ModelType               string             `json:"model_type"`
	RiskLevel               RiskLevel          `json:"risk_level"`
	RiskColor               string             `json:"risk_color"`
	RiskScore               float64            `json:"risk_score"`
	EstimatedDropoutRate    float64            `json:"estimated_dropout_rate"`
	Confidence              float64            `json:"confidence"`
	RiskFactors             []string           `json:"risk_factors"`
	PredictionProbabilities ClassProbabilities `json:"prediction_probabilities"`
	FeatureAnalysis         FeatureAnalysis    `json:"feature_analysis"`
	ModelInfo               TreeModelInfo      `json:"model_info"`
}

// riskRule yields at most one factor; rules are evaluated in slice order.
type riskRule func(f ml.SchoolFeatures) (string, bool)

var riskRules = []riskRule{
	func(f ml.SchoolFeatures) (string, bool) {
		ratio := f.StudentTeacherRatio()
		switch {
		case ratio > 25:
			return "Ratio estudiante-maestro muy alto (>25)", true
		case ratio > 20:
			return "Ratio estudiante-maestro alto (>20)", true
		}
		return "", false
	},
	func(f ml.SchoolFeatures) (string, bool) {
		switch {
		case f.AverageGrade < 7.0:
			return "Promedio de calificaciones muy bajo (<7.0)", true
		case f.AverageGrade < 8.0:
			return "Promedio de calificaciones bajo (<8.0)", true
		}
		return "", false
	},
	func(f ml.SchoolFeatures) (string, bool) {
		return "Tasa de inscripción baja (<85%)", f.EnrollmentRate() < 0.85
	},
	func(f ml.SchoolFeatures) (string, bool) {
		return "Ubicación rural", !f.Urban
	},
	func(f ml.SchoolFeatures) (string, bool) {
		switch {
		case f.Students < 150:
			return "Escuela pequeña (<150 estudiantes)", true
		case f.Students > 500:
			return "Escuela muy grande (>500 estudiantes)", true
		}
		return "", false
	},
}

func RiskFactors(f ml.SchoolFeatures) []string {
	factors := []string{}
	for _, rule := range riskRules {
		if factor, ok := rule(f); ok {
			factors = append(factors, factor)
		}
	}
	return factors
}

type DropoutScorer struct {
	bundle *store.Bundle
	logger *zap.Logger
}

func NewDropoutScorer(bundle *store.Bundle, logger *zap.Logger) *DropoutScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DropoutScorer{bundle: bundle, logger: logger}
}

// Score classifies one school profile. Failures come back as a
// *PredictionError.
func (s *DropoutScorer) Score(req DropoutRequest) (result *DropoutAssessment, err error) {
	defer recoverInto(s.logger, ModelTypeDecisionTree, &err)

	if s.bundle == nil || s.bundle.Classifier == nil {
		return nil, newPredictionError(ModelTypeDecisionTree, errClassifierMissing)
	}
	meta := s.bundle.TreeMeta

	var names []string
	if meta != nil {
		names = meta.Features
	}
	columns, err := ml.Extractors(names)
	if err != nil {
		return nil, newPredictionError(ModelTypeDecisionTree, err)
	}

	if err := checkFeatures(req.SchoolFeatures); err != nil {
		return nil, newPredictionError(ModelTypeDecisionTree, err)
	}

	class, proba, err := s.bundle.Classifier.PredictProba(ml.FeatureVector(req.SchoolFeatures, columns))
	if err != nil {
		return nil, newPredictionError(ModelTypeDecisionTree, err)
	}
	if len(proba) != 2 {
		return nil, newPredictionError(ModelTypeDecisionTree,
			fmt.Errorf("expected 2 class probabilities, got %d", len(proba)))
	}

	best := ml.MaxValue(proba)
	level := RiskLow
	if class == highRiskClass {
		level = RiskHigh
	}
	if best < mediumRiskCutoff {
		level = RiskMedium
	}

	accuracy := defaultModelAccuracy
	info := TreeModelInfo{TrainingAccuracy: "N/A", TrainingDate: "Unknown"}
	if meta != nil {
		if meta.TrainingDate != "" {
			info.TrainingDate = meta.TrainingDate
		}
		// zero means the metadata carried no accuracy
		if meta.Accuracy > 0 && finite(meta.Accuracy) {
			accuracy = meta.Accuracy
			info.TrainingAccuracy = meta.Accuracy
		}
	}

	result = &DropoutAssessment{
		ModelType:            ModelTypeDecisionTree,
		RiskLevel:            level,
		RiskColor:            level.Color(),
		RiskScore:            ml.Round(best, 4),
		EstimatedDropoutRate: ml.Round(estimatedDropoutRate(meta, class, proba), 2),
		Confidence:           ml.Round(best*accuracy, 4),
		RiskFactors:          RiskFactors(req.SchoolFeatures),
		PredictionProbabilities: ClassProbabilities{
			LowRisk:  ml.Round(proba[0], 4),
			HighRisk: ml.Round(proba[1], 4),
		},
		FeatureAnalysis: analyzeFeatures(req.SchoolFeatures),
		ModelInfo:       info,
	}
	if !finite(result.EstimatedDropoutRate, result.Confidence, result.RiskScore,
		result.FeatureAnalysis.StudentTeacherRatio, result.FeatureAnalysis.EnrollmentRate) {
		return nil, newPredictionError(ModelTypeDecisionTree, errors.New("risk assessment produced a non-finite value"))
	}
	s.logger.Info("Dropout risk scored",
		zap.String("risk_level", string(level)),
		zap.Float64("risk_score", result.RiskScore),
		zap.Int("risk_factors", len(result.RiskFactors)))
	return result, nil
}

// checkFeatures rejects profiles whose raw or derived features overflow,
// such as a huge student count over a tiny teacher count.
func checkFeatures(f ml.SchoolFeatures) error {
	columns, err := ml.Extractors(nil)
	if err != nil {
		return err
	}
	for i, v := range ml.FeatureVector(f, columns) {
		if !finite(v) {
			return fmt.Errorf("feature %s is not finite: %v", columns[i].Name, v)
		}
	}
	return nil
}

// estimatedDropoutRate uses the raw class, before any MEDIO override.
func estimatedDropoutRate(meta *store.TreeMetadata, class int, proba []float64) float64 {
	if meta == nil || meta.MedianDropoutThreshold == nil {
		if class == highRiskClass {
			return defaultHighRiskDropout
		}
		return defaultLowRiskDropout
	}
	threshold := *meta.MedianDropoutThreshold
	if class == highRiskClass {
		return threshold * (1.2 + proba[1]*0.5)
	}
	return threshold * (0.5 + proba[0]*0.3)
}

func analyzeFeatures(f ml.SchoolFeatures) FeatureAnalysis {
	return FeatureAnalysis{
		StudentTeacherRatio: ml.Round(f.StudentTeacherRatio(), 2),
		EnrollmentRate:      ml.Round(f.EnrollmentRate(), 4),
		GradeCategory:       gradeCategory(f.AverageGrade),
		SchoolSizeCategory:  sizeCategory(f.Students),
	}
}

func gradeCategory(grade float64) string {
	switch {
	case grade >= 8.5:
		return "Alto"
	case grade >= 7.5:
		return "Medio"
	default:
		return "Bajo"
	}
}

func sizeCategory(students float64) string {
	switch {
	case students < 200:
		return "Pequeña"
	case students > 400:
		return "Grande"
	default:
		return "Mediana"
	}
}
