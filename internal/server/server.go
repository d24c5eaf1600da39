package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/kiesman99/bandcrop/internal/crop"
	"github.com/kiesman99/bandcrop/pkg/raster"
)

// maxLayers bounds the selection size of one request.
const maxLayers = 256

// Server serves the crop API on top of a data root
type Server struct {
	startTime time.Time
	version   string
	fs        afero.Fs
	opts      crop.Options
	log       *zap.Logger
}

// NewServer creates a new server instance. Layer paths and outputs resolve
// inside fs, which is expected to be rooted at the data directory.
func NewServer(version string, fs afero.Fs, opts crop.Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		startTime: time.Now(),
		version:   version,
		fs:        fs,
		opts:      opts,
		log:       log,
	}
}

// Router mounts the API below /api/v1 with the standard middleware stack.
func Router(s *Server, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(timeout))

	// CORS middleware for API access
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.GetHealth)
		r.Post("/crop", s.CreateCrop)
	})

	// Legacy health endpoint (without /api/v1 prefix)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/v1/health", http.StatusMovedPermanently)
	})

	return r
}

// GetHealth implements the health check endpoint. The server is unhealthy
// while its data root cannot be read.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := HealthResponse{
		Status:    Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}

	status := http.StatusOK
	if info, err := s.fs.Stat("."); err != nil || !info.IsDir() {
		s.log.Warn("data root unavailable", zap.Error(err))
		response.Status = Unhealthy
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, response)
}

// CreateCrop crops every requested layer and reports per-layer results
func (s *Server) CreateCrop(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var req CropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, InvalidJSON,
			"Invalid JSON in request body", &requestID, nil)
		return
	}

	if err := validateCropRequest(&req); err != nil {
		s.writeValidationErrorResponse(w, err.Error(), &requestID)
		return
	}

	layers := make([]raster.Layer, len(req.Layers))
	for i, p := range req.Layers {
		layers[i] = raster.NewFileLayer(s.fs, filepath.Clean(p))
	}

	opts := s.opts
	opts.OutputRoot = ""
	opts.Logger = s.log.With(zap.String("request_id", requestID))
	messages := []string{}
	opts.Notifier = crop.NotifyFunc(func(msg string) {
		messages = append(messages, msg)
	})

	results := crop.New(s.fs, opts).ProcessSelection(r.Context(), layers)

	response := CropResponse{
		RequestId: requestID,
		Results:   make([]LayerResult, len(results)),
		Messages:  messages,
	}
	for i, res := range results {
		response.Results[i] = convertResult(req.Layers[i], res)
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, response)
}

// validateCropRequest validates the incoming crop request
func validateCropRequest(req *CropRequest) error {
	if len(req.Layers) == 0 {
		return fmt.Errorf("layers must not be empty")
	}
	if len(req.Layers) > maxLayers {
		return fmt.Errorf("at most %d layers per request", maxLayers)
	}
	for _, p := range req.Layers {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("layer path must not be empty")
		}
		if filepath.IsAbs(p) {
			return fmt.Errorf("layer path %q must be relative to the data root", p)
		}
		for _, part := range strings.Split(filepath.ToSlash(p), "/") {
			if part == ".." {
				return fmt.Errorf("layer path %q must not leave the data root", p)
			}
		}
	}
	return nil
}

func convertResult(path string, res *crop.Result) LayerResult {
	out := LayerResult{
		Layer:  path,
		Status: string(res.Status),
		Dir:    res.Dir,
		Files:  res.Files,
	}
	if out.Files == nil {
		out.Files = []string{}
	}
	if res.Reason != nil {
		out.Reason = res.Reason.Error()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.Status == crop.StatusExported {
		box, extent := res.Box, res.Extent
		out.Box = &box
		out.Extent = &extent
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	if details != nil {
		response.Details = &details
	}

	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, message string, requestID *string) {
	response := ValidationErrorResponse{
		Error:     ValidationError,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []FieldError{
			{
				Field:   "layers",
				Message: message,
			},
		},
	}

	s.writeJSON(w, http.StatusBadRequest, response)
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return "req_" + uuid.NewString()
}
