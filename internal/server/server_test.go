package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/bandcrop/internal/crop"
	"github.com/kiesman99/bandcrop/internal/geotiff"
)

const dataRoot = "/srv/data"

// Test server setup
func setupTestServer(t *testing.T) (*httptest.Server, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()

	// 4x3 scene, foreground in band 0 at (1,1) and band 1 at (2,1)
	var buf bytes.Buffer
	require.NoError(t, geotiff.Encode(&buf, &geotiff.Image{
		Width:  4,
		Height: 3,
		Bands: [][]float64{
			{0, 0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0},
			{0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0},
		},
		Georef: &geotiff.Georef{OriginX: 100, OriginY: 200, ScaleX: 1, ScaleY: 1, EPSG: 4326},
	}))
	require.NoError(t, afero.WriteFile(mem, dataRoot+"/scenes/scene.v2.tif", buf.Bytes(), 0o644))
	require.NoError(t, afero.WriteFile(mem, dataRoot+"/scenes/notes.txt", []byte("not a raster"), 0o644))

	apiServer := NewServer("2.0.0-test", afero.NewBasePathFs(mem, dataRoot), crop.Options{})
	return httptest.NewServer(Router(apiServer, 30*time.Second)), mem
}

func postCrop(t *testing.T, url string, body io.Reader) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/v1/crop", "application/json", body)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if healthResp.Status != Healthy {
		t.Errorf("Expected status 'healthy', got %s", healthResp.Status)
	}

	if healthResp.Version == nil || *healthResp.Version != "2.0.0-test" {
		t.Errorf("Expected version '2.0.0-test', got %v", healthResp.Version)
	}

	if healthResp.Uptime == nil || *healthResp.Uptime < 0 {
		t.Errorf("Expected valid uptime, got %v", healthResp.Uptime)
	}

	if time.Since(healthResp.Timestamp) > time.Minute {
		t.Errorf("Timestamp seems too old: %v", healthResp.Timestamp)
	}
}

func TestHealthEndpoint_MissingDataRoot(t *testing.T) {
	apiServer := NewServer("2.0.0-test", afero.NewBasePathFs(afero.NewMemMapFs(), "/gone"), crop.Options{})
	server := httptest.NewServer(Router(apiServer, 30*time.Second))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if healthResp.Status != Unhealthy {
		t.Errorf("Expected status 'unhealthy', got %s", healthResp.Status)
	}
}

func TestLegacyHealthRedirect(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMovedPermanently {
		t.Errorf("Expected status 301, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/v1/health" {
		t.Errorf("Expected redirect to /api/v1/health, got %s", loc)
	}
}

func TestCropEndpoint_Success(t *testing.T) {
	server, mem := setupTestServer(t)
	defer server.Close()

	jsonData, err := json.Marshal(CropRequest{Layers: []string{"scenes/scene.v2.tif"}})
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	resp := postCrop(t, server.URL, bytes.NewBuffer(jsonData))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d. Body: %s", resp.StatusCode, string(body))
	}

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	var cropResp CropResponse
	if err := json.NewDecoder(resp.Body).Decode(&cropResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !strings.HasPrefix(cropResp.RequestId, "req_") {
		t.Errorf("Expected request id with req_ prefix, got %s", cropResp.RequestId)
	}
	if len(cropResp.Messages) != 0 {
		t.Errorf("Expected no messages, got %v", cropResp.Messages)
	}
	if len(cropResp.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(cropResp.Results))
	}

	res := cropResp.Results[0]
	if res.Status != string(crop.StatusExported) {
		t.Fatalf("Expected status exported, got %s (%s)", res.Status, res.Error)
	}
	if res.Dir != "scenes/scene" {
		t.Errorf("Expected dir scenes/scene, got %s", res.Dir)
	}
	if res.Box == nil || res.Box.MinCol != 1 || res.Box.MaxCol != 2 || res.Box.MinRow != 1 || res.Box.MaxRow != 1 {
		t.Errorf("Unexpected box %+v", res.Box)
	}
	if res.Extent == nil || res.Extent.XMin != 101 || res.Extent.XMax != 103 || res.Extent.YMin != 198 || res.Extent.YMax != 199 {
		t.Errorf("Unexpected extent %+v", res.Extent)
	}
	if len(res.Files) != 2 {
		t.Fatalf("Expected 2 files, got %v", res.Files)
	}

	for _, name := range []string{"0.tif", "1.tif"} {
		ok, err := afero.Exists(mem, dataRoot+"/scenes/scene/"+name)
		if err != nil || !ok {
			t.Errorf("Expected %s inside the data root", name)
		}
	}
}

func TestCropEndpoint_InvalidRaster(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	body := strings.NewReader(`{"layers":["scenes/notes.txt","scenes/scene.v2.tif"]}`)
	resp := postCrop(t, server.URL, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var cropResp CropResponse
	if err := json.NewDecoder(resp.Body).Decode(&cropResp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(cropResp.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(cropResp.Results))
	}
	if cropResp.Results[0].Status != string(crop.StatusFailed) || cropResp.Results[0].Error == "" {
		t.Errorf("Expected failed result with error, got %+v", cropResp.Results[0])
	}
	if cropResp.Results[1].Status != string(crop.StatusExported) {
		t.Errorf("Expected second layer exported, got %+v", cropResp.Results[1])
	}
	if len(cropResp.Messages) != 1 || cropResp.Messages[0] != "No raster layer selected. Please select one raster layer." {
		t.Errorf("Unexpected messages %v", cropResp.Messages)
	}
}

func TestCropEndpoint_ValidationErrors(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	testCases := []struct {
		name           string
		request        interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Invalid JSON",
			request:        `{"invalid": json}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "INVALID_JSON",
		},
		{
			name:           "Missing layers",
			request:        CropRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Blank layer path",
			request:        CropRequest{Layers: []string{"  "}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Absolute layer path",
			request:        CropRequest{Layers: []string{"/etc/scene.tif"}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Layer outside data root",
			request:        CropRequest{Layers: []string{"scenes/../../scene.tif"}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Too many layers",
			request:        CropRequest{Layers: make([]string, maxLayers+1)},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var body io.Reader

			if str, ok := tc.request.(string); ok {
				body = strings.NewReader(str)
			} else {
				jsonData, err := json.Marshal(tc.request)
				if err != nil {
					t.Fatalf("Failed to marshal request: %v", err)
				}
				body = bytes.NewBuffer(jsonData)
			}

			resp := postCrop(t, server.URL, body)
			defer resp.Body.Close()

			if resp.StatusCode != tc.expectedStatus {
				responseBody, _ := io.ReadAll(resp.Body)
				t.Errorf("Expected status %d, got %d. Body: %s", tc.expectedStatus, resp.StatusCode, string(responseBody))
			}

			var errorResp map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}

			if errorCode, ok := errorResp["error"].(string); !ok || errorCode != tc.expectedError {
				t.Errorf("Expected error code %s, got %v", tc.expectedError, errorResp["error"])
			}
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	req, err := http.NewRequest("OPTIONS", server.URL+"/api/v1/crop", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected Access-Control-Allow-Origin: *")
	}

	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Error("Expected Access-Control-Allow-Methods to include POST")
	}

	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type") {
		t.Error("Expected Access-Control-Allow-Headers to include Content-Type")
	}
}
