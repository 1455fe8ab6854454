package analyzer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/macrocam/internal/log"
	"github.com/felixgeelhaar/macrocam/internal/metrics"
)

// MaxImageBytes bounds an uploaded image.
const MaxImageBytes = 20 << 20

// Analyzer is what the handler needs from a Service.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, contentType string) (*Result, error)
}

// Handler serves POST /analyze with a multipart "image" field.
type Handler struct {
	analyzer Analyzer
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// NewHandler creates the /analyze handler.
func NewHandler(a Analyzer, m *metrics.Metrics, logger *log.Logger) *Handler {
	return &Handler{
		analyzer: a,
		metrics:  m,
		logger:   log.OrDefault(logger).With("component", "analyze_handler"),
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.serve(w, r)

	if h.metrics != nil {
		h.metrics.AnalyzeRequests.WithLabelValues(strconv.Itoa(status)).Inc()
		h.metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return writeJSON(w, http.StatusMethodNotAllowed, errorBody{Detail: "Method Not Allowed"})
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "image is too large"})
		}
		return writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "field required: image"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: "could not read image: " + err.Error()})
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	result, err := h.analyzer.Analyze(r.Context(), data, contentType)
	if err != nil {
		h.logger.Error("analysis failed", "error", err.Error(), "filename", header.Filename)
		return writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
	}

	return writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
	return status
}
