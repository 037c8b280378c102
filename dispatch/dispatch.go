// Package dispatch validates one request, routes it to the matching
// predictor and wraps the result in the response envelope.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"edupredict/ml"
	"edupredict/predict"
	"edupredict/store"
)

const (
	ModelEnrollment = "enrollment"
	ModelDropout    = "dropout"

	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	msgModelsNotLoaded      = "Modelos no cargados. Execute train_model para entrenar los modelos primero."
	msgUnknownModel         = "Tipo de modelo no reconocido: %s"
	msgInvalidParams        = "Parámetros inválidos: %s"
	msgEnrollmentCounts     = "Cantidad de alumnos e inscripciones deben ser mayores a 0"
	msgDropoutCounts        = "Los valores de alumnos, inscripciones y maestros deben ser mayores a 0"
	msgGradeRange           = "El promedio de calificaciones debe estar entre 0 y 10"
	msgEnrollmentSuccess    = "Predicción de inscripciones generada exitosamente usando modelo ARIMA entrenado"
	msgDropoutSuccess       = "Predicción de riesgo de deserción generada exitosamente usando modelo de Árbol de Decisión entrenado"
	msgEnrollmentPredFailed = "Error en la predicción de inscripciones: %s"
	msgDropoutPredFailed    = "Error en la predicción de riesgo de deserción: %s"

	defaultTeachers = 1
	defaultYear     = 2024
)

// Response is the envelope printed for every request.
type Response struct {
	Status          string   `json:"status"`
	Message         string   `json:"message,omitempty"`
	ModelType       string   `json:"model_type,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	PredictionData  any      `json:"prediction_data,omitempty"`
	InputParameters any      `json:"input_parameters,omitempty"`
	Timestamp       string   `json:"timestamp"`
	ProcessingTime  string   `json:"processing_time"`
	ModelVersion    string   `json:"model_version"`
	ModelsStatus    string   `json:"models_status"`
}

type EnrollmentInput struct {
	Students    float64 `json:"cantidad_alumnos"`
	Enrollments float64 `json:"numero_inscripciones"`
	Year        int     `json:"anio"`
}

type DropoutInput struct {
	Students     float64 `json:"cantidad_alumnos"`
	Enrollments  float64 `json:"numero_inscripciones"`
	Teachers     float64 `json:"numero_maestros"`
	AverageGrade float64 `json:"promedio_calificaciones"`
	Urban        bool    `json:"es_urbana"`
}

type Dispatcher struct {
	bundle     *store.Bundle
	version    string
	logger     *zap.Logger
	forecaster *predict.EnrollmentForecaster
	scorer     *predict.DropoutScorer

	// Now is swapped in tests.
	Now func() time.Time
}

func New(bundle *store.Bundle, version string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bundle == nil {
		bundle = &store.Bundle{}
	}
	return &Dispatcher{
		bundle:     bundle,
		version:    version,
		logger:     logger,
		forecaster: predict.NewEnrollmentForecaster(bundle, logger),
		scorer:     predict.NewDropoutScorer(bundle, logger),
		Now:        time.Now,
	}
}

// Handle never fails: every outcome, including bad input, is encoded in
// the returned Response.
func (d *Dispatcher) Handle(params map[string]any) Response {
	start := d.Now()
	modelType := modelTypeParam(params)
	d.logger.Info("Processing request", zap.String("model_type", modelType), zap.Any("parameters", params))

	var resp Response
	switch {
	case !d.bundle.Loaded:
		resp = failure(msgModelsNotLoaded, "")
	case modelType == ModelEnrollment:
		resp = d.handleEnrollment(params)
	case modelType == ModelDropout:
		resp = d.handleDropout(params)
	default:
		resp = failure(fmt.Sprintf(msgUnknownModel, modelType), "")
	}
	if resp.Status == StatusError {
		d.logger.Warn("Request failed", zap.String("model_type", modelType), zap.String("message", resp.Message))
	}
	return d.stamp(resp, start)
}

func (d *Dispatcher) handleEnrollment(params map[string]any) Response {
	var in EnrollmentInput
	var err error
	if in.Students, err = floatParam(params, "cantidad_alumnos", 0); err != nil {
		return invalid(err)
	}
	if in.Enrollments, err = floatParam(params, "numero_inscripciones", 0); err != nil {
		return invalid(err)
	}
	if in.Year, err = intParam(params, "anio", defaultYear); err != nil {
		return invalid(err)
	}
	if in.Students <= 0 || in.Enrollments <= 0 {
		return failure(msgEnrollmentCounts, predict.ModelTypeARIMA)
	}

	result, err := d.forecaster.Forecast(predict.EnrollmentRequest{
		Students:    in.Students,
		Enrollments: in.Enrollments,
		Year:        in.Year,
	})
	if err != nil {
		return componentFailure(msgEnrollmentPredFailed, predict.ModelTypeARIMA, err, in)
	}
	return Response{
		Status:          StatusSuccess,
		Message:         msgEnrollmentSuccess,
		PredictionData:  result,
		InputParameters: in,
	}
}

func (d *Dispatcher) handleDropout(params map[string]any) Response {
	var in DropoutInput
	var err error
	if in.Students, err = floatParam(params, "cantidad_alumnos", 0); err != nil {
		return invalid(err)
	}
	if in.Enrollments, err = floatParam(params, "numero_inscripciones", 0); err != nil {
		return invalid(err)
	}
	if in.Teachers, err = floatParam(params, "numero_maestros", defaultTeachers); err != nil {
		return invalid(err)
	}
	if in.AverageGrade, err = floatParam(params, "promedio_calificaciones", 0); err != nil {
		return invalid(err)
	}
	if in.Urban, err = urbanParam(params, "es_urbana"); err != nil {
		return invalid(err)
	}
	if in.Students <= 0 || in.Enrollments <= 0 || in.Teachers <= 0 {
		return failure(msgDropoutCounts, predict.ModelTypeDecisionTree)
	}
	if in.AverageGrade < 0 || in.AverageGrade > 10 {
		return failure(msgGradeRange, predict.ModelTypeDecisionTree)
	}

	result, err := d.scorer.Score(predict.DropoutRequest{SchoolFeatures: ml.SchoolFeatures{
		Students:     in.Students,
		Enrollments:  in.Enrollments,
		Teachers:     in.Teachers,
		AverageGrade: in.AverageGrade,
		Urban:        in.Urban,
	}})
	if err != nil {
		return componentFailure(msgDropoutPredFailed, predict.ModelTypeDecisionTree, err, in)
	}
	return Response{
		Status:          StatusSuccess,
		Message:         msgDropoutSuccess,
		PredictionData:  result,
		InputParameters: in,
	}
}

func (d *Dispatcher) stamp(resp Response, start time.Time) Response {
	end := d.Now()
	resp.Timestamp = end.Format("2006-01-02T15:04:05.000000")
	resp.ProcessingTime = processingTime(end.Sub(start))
	resp.ModelVersion = d.version
	resp.ModelsStatus = d.bundle.Status()
	return resp
}

func processingTime(elapsed time.Duration) string {
	if elapsed < time.Second {
		return "< 1 second"
	}
	return elapsed.Round(time.Millisecond).String()
}

func failure(message, modelType string) Response {
	zero := 0.0
	return Response{Status: StatusError, Message: message, ModelType: modelType, Confidence: &zero}
}

func invalid(err error) Response {
	return failure(fmt.Sprintf(msgInvalidParams, err), "")
}

// componentFailure reports a predictor error with its typed payload.
func componentFailure(format, modelType string, err error, input any) Response {
	var predErr *predict.PredictionError
	if !errors.As(err, &predErr) {
		predErr = &predict.PredictionError{ModelType: modelType, Message: err.Error()}
	}
	return Response{
		Status:          StatusError,
		Message:         fmt.Sprintf(format, predErr.Message),
		PredictionData:  predErr,
		InputParameters: input,
	}
}
