package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edupredict/config"
	"edupredict/dispatch"
	"edupredict/logging"
	"edupredict/store"
)

const timestampLayout = "2006-01-02T15:04:05.000000"

var errArgCount = errors.New("Los parámetros deben ser ingresados como un único argumento JSON.")

// fatalResponse is printed when the request never reaches the dispatcher.
type fatalResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	// 1. Validate invocation
	if len(args) != 1 {
		return fail(stdout, "Ejecución de script fallida: %v", errArgCount)
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(args[0]), &params); err != nil {
		return fail(stdout, "Parámetros JSON inválidos: %v", err)
	}

	// 2. Load config and logger
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fail(stdout, "Ejecución de script fallida: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fail(stdout, "Ejecución de script fallida: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("Parámetros recibidos", zap.Any("parameters", params))

	// 3. Load models and answer
	bundle := store.Load(cfg.ModelsDir, logger)
	resp := dispatch.New(bundle, cfg.ModelVersion, logger).Handle(params)
	return respond(stdout, resp, logger)
}

// respond writes resp, or an error document when resp cannot be encoded.
// The encoder marshals before writing, so a failed encode leaves stdout
// untouched.
func respond(stdout io.Writer, resp any, logger *zap.Logger) int {
	if err := encode(stdout, resp); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
		return fail(stdout, "Ejecución de script fallida: %v", err)
	}
	return 0
}

func fail(stdout io.Writer, format string, err error) int {
	encode(stdout, fatalResponse{
		Status:    dispatch.StatusError,
		Message:   fmt.Sprintf(format, err),
		Timestamp: time.Now().Format(timestampLayout),
	})
	return 1
}

func encode(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}
