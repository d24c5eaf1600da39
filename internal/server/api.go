package server

import (
	"time"

	"github.com/kiesman99/bandcrop/pkg/raster"
)

// HealthStatus is the state reported by the health endpoint
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// Error codes of ErrorResponse
const (
	InvalidJSON     = "INVALID_JSON"
	ValidationError = "VALIDATION_ERROR"
)

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    *int         `json:"uptime,omitempty"`
	Version   *string      `json:"version,omitempty"`
}

// CropRequest selects the layers to crop. Paths are relative to the server
// data root.
type CropRequest struct {
	Layers []string `json:"layers"`
}

// LayerResult is the outcome of one requested layer
type LayerResult struct {
	Layer  string           `json:"layer"`
	Status string           `json:"status"`
	Reason string           `json:"reason,omitempty"`
	Error  string           `json:"error,omitempty"`
	Dir    string           `json:"dir,omitempty"`
	Box    *raster.PixelBox `json:"box,omitempty"`
	Extent *raster.Extent   `json:"extent,omitempty"`
	Files  []string         `json:"files"`
}

// CropResponse defines model for CropResponse.
type CropResponse struct {
	RequestId string        `json:"request_id"`
	Results   []LayerResult `json:"results"`
	Messages  []string      `json:"messages"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
	Details   *map[string]interface{} `json:"details,omitempty"`
}

// FieldError names the offending request field
type FieldError struct {
	Code    *string `json:"code,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            string       `json:"error"`
	Message          string       `json:"message"`
	RequestId        *string      `json:"request_id,omitempty"`
	ValidationErrors []FieldError `json:"validation_errors"`
}
