package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"notechat/internal/logger"
)

// DebugTransportService provides HTTP request/response capture for all LLM clients.
// It is enabled with --debug-http; every exchange is written to the sink as
// one JSON line.
type DebugTransportService struct {
	sink        io.Writer
	initialized bool
	mutex       sync.Mutex
}

// NewDebugTransportService creates a new DebugTransportService instance.
func NewDebugTransportService() *DebugTransportService {
	return &DebugTransportService{
		initialized: false,
	}
}

// Name returns the service name "debug-transport" for registration.
func (d *DebugTransportService) Name() string {
	return "debug-transport"
}

// Initialize sets up the DebugTransportService for operation.
func (d *DebugTransportService) Initialize() error {
	logger.ServiceOperation("debug-transport", "initialize", "starting")
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.initialized = true

	logger.ServiceOperation("debug-transport", "initialize", "completed")
	return nil
}

// SetSink sets the writer every capture is appended to. nil disables it.
func (d *DebugTransportService) SetSink(w io.Writer) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.sink = w
}

// CreateTransport creates a new debug-enabled HTTP transport wrapping base.
// A nil base means http.DefaultTransport.
func (d *DebugTransportService) CreateTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !d.initialized {
		logger.Error("Debug transport service not initialized")
		return base
	}

	return &debugTransport{
		base:    base,
		service: d,
	}
}

// write appends a capture to the sink, if one is set.
func (d *DebugTransportService) write(data string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.sink == nil {
		return
	}
	if _, err := fmt.Fprintln(d.sink, data); err != nil {
		logger.Warn("Failed to write debug capture", "error", err)
	}
}

// debugTransport implements http.RoundTripper with request/response capture.
type debugTransport struct {
	base    http.RoundTripper
	service *DebugTransportService
}

// RoundTrip implements http.RoundTripper interface with debug capture.
func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	requestData, err := dt.captureRequest(req)
	if err != nil {
		logger.Error("Failed to capture request", "error", err)
		// Continue with request even if capture fails
	}

	resp, err := dt.base.RoundTrip(req)
	endTime := time.Now()

	if err != nil {
		dt.captureError(requestData, err, startTime, endTime)
		return resp, err
	}

	// Event streams are captured as they are consumed, so the caller still
	// sees fragments as they arrive.
	if isEventStream(resp) && resp.Body != nil {
		responseData := dt.responseHeaders(resp)
		resp.Body = &streamCapture{
			ReadCloser: resp.Body,
			onClose: func(body []byte) {
				responseData["body"] = string(body)
				dt.storeDebugData(requestData, responseData, startTime, time.Now())
			},
		}
		return resp, nil
	}

	responseData, captureErr := dt.captureResponse(resp)
	if captureErr != nil {
		logger.Error("Failed to capture response", "error", captureErr)
		// Continue with response even if capture fails
		responseData = map[string]interface{}{
			"error": "failed to capture response data",
		}
	}

	dt.storeDebugData(requestData, responseData, startTime, endTime)

	return resp, nil
}

// captureRequest captures HTTP request data.
func (dt *debugTransport) captureRequest(req *http.Request) (map[string]interface{}, error) {
	requestData := map[string]interface{}{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": dt.sanitizeHeaders(req.Header),
	}

	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return requestData, fmt.Errorf("failed to read request body: %w", err)
		}

		// Restore the request body for actual transmission
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		if len(bodyBytes) > 0 {
			requestData["body"] = decodeBody(bodyBytes)
		}
	}

	return requestData, nil
}

func (dt *debugTransport) responseHeaders(resp *http.Response) map[string]interface{} {
	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
		"headers":     dt.sanitizeHeaders(resp.Header),
	}
}

// captureResponse captures HTTP response data.
func (dt *debugTransport) captureResponse(resp *http.Response) (map[string]interface{}, error) {
	responseData := dt.responseHeaders(resp)

	if resp.Body != nil {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return responseData, fmt.Errorf("failed to read response body: %w", err)
		}
		_ = resp.Body.Close()

		// Restore the response body for client consumption
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		if len(bodyBytes) > 0 {
			responseData["body"] = decodeBody(bodyBytes)
		}
	}

	return responseData, nil
}

// captureError captures error information when request fails.
func (dt *debugTransport) captureError(requestData map[string]interface{}, err error, startTime, endTime time.Time) {
	dt.storeDebugData(requestData, map[string]interface{}{"error": err.Error()}, startTime, endTime)
}

// storeDebugData combines request/response data and stores it.
func (dt *debugTransport) storeDebugData(requestData, responseData map[string]interface{}, startTime, endTime time.Time) {
	debugData := map[string]interface{}{
		"http_request":  requestData,
		"http_response": responseData,
		"timing": map[string]interface{}{
			"request_time":  startTime.Format(time.RFC3339),
			"response_time": endTime.Format(time.RFC3339),
			"duration_ms":   endTime.Sub(startTime).Milliseconds(),
		},
	}

	jsonData, err := json.Marshal(debugData)
	if err != nil {
		logger.Error("Failed to marshal debug data", "error", err)
		dt.service.write(`{"error": "failed to marshal debug data"}`)
		return
	}

	dt.service.write(string(jsonData))
	logger.Debug("Debug data captured", "data_length", len(jsonData))
}

// sanitizeHeaders removes or masks sensitive headers.
func (dt *debugTransport) sanitizeHeaders(headers http.Header) map[string]interface{} {
	sanitized := make(map[string]interface{})

	for name, values := range headers {
		lowerName := strings.ToLower(name)

		if strings.Contains(lowerName, "authorization") ||
			strings.Contains(lowerName, "api-key") ||
			strings.Contains(lowerName, "token") {
			if len(values) > 0 && len(values[0]) > 10 {
				// Show first 10 characters and mask the rest
				sanitized[name] = []string{values[0][:10] + "***[MASKED]***"}
			} else {
				sanitized[name] = []string{"***[MASKED]***"}
			}
		} else {
			sanitized[name] = values
		}
	}

	return sanitized
}

func decodeBody(body []byte) interface{} {
	var jsonBody interface{}
	if err := json.Unmarshal(body, &jsonBody); err == nil {
		return jsonBody
	}
	return string(body)
}

func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

// streamCapture records a streamed body as it is read and reports it once on Close.
type streamCapture struct {
	io.ReadCloser
	buf     bytes.Buffer
	once    sync.Once
	onClose func([]byte)
}

func (s *streamCapture) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	s.buf.Write(p[:n])
	return n, err
}

func (s *streamCapture) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(func() { s.onClose(s.buf.Bytes()) })
	return err
}
