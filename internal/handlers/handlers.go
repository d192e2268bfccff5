package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/logging"
	"github.com/example/ml-gateway/internal/repository"
	"github.com/example/ml-gateway/internal/usecase"
)

// DefaultMaxUploadSize bounds multipart image uploads.
const DefaultMaxUploadSize int64 = 10 << 20

// multipartSlack covers boundaries and headers around the image part.
const multipartSlack = 64 << 10

// InferenceService is the application surface the routes depend on.
type InferenceService interface {
	Predict(ctx context.Context, content, brand string) (*usecase.PredictionResult, error)
	ExtractText(ctx context.Context, imageBytes []byte) (*usecase.TextResult, error)
	DetectObjects(ctx context.Context, imageBytes []byte) (*usecase.ObjectsResult, error)
	DetectWounds(ctx context.Context, imageBytes []byte) (*usecase.WoundResult, error)
	GetResult(ctx context.Context, requestID string) (*repository.InferenceLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Options tunes route registration.
type Options struct {
	MaxUploadSize int64
	Logger        *zap.Logger
	// Auth, when set, guards every route except /health.
	Auth gin.HandlerFunc
}

type predictRequest struct {
	Content string `json:"content"`
	Brand   string `json:"brand"`
}

type handler struct {
	svc       InferenceService
	maxUpload int64
	logger    *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc InferenceService, opts Options) {
	h := &handler{svc: svc, maxUpload: opts.MaxUploadSize, logger: opts.Logger}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUploadSize
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/")
	if opts.Auth != nil {
		api.Use(opts.Auth)
	}
	api.POST("/predict", h.predict)
	api.POST("/ocr", h.ocr)
	api.POST("/process_image", h.processImage)
	api.POST("/wound", h.wound)
	api.GET("/result/:id", h.result)
	api.GET("/metrics/summary", h.metricsSummary)
}

func (h *handler) predict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}

	res, err := h.svc.Predict(c.Request.Context(), req.Content, req.Brand)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Request-ID", res.RequestID)
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"request_id":  res.RequestID,
		"predictions": res.Predictions,
	})
}

func (h *handler) ocr(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}
	res, err := h.svc.ExtractText(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Request-ID", res.RequestID)
	c.JSON(http.StatusOK, gin.H{
		"request_id":     res.RequestID,
		"extracted_text": res.Text,
	})
}

func (h *handler) processImage(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}
	res, err := h.svc.DetectObjects(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Request-ID", res.RequestID)
	c.JSON(http.StatusOK, gin.H{
		"request_id":  res.RequestID,
		"yolo_labels": res.Labels,
		"detections":  res.Detections,
	})
}

func (h *handler) wound(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}
	res, err := h.svc.DetectWounds(c.Request.Context(), data)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Request-ID", res.RequestID)
	c.JSON(http.StatusOK, gin.H{
		"request_id":      res.RequestID,
		"detected_wounds": res.Wounds,
		"message":         res.Message,
	})
}

func (h *handler) result(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	log, err := h.svc.GetResult(c.Request.Context(), requestID)
	if errors.Is(err, usecase.ErrResultNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id": log.RequestID,
		"endpoint":   log.Endpoint,
		"input_hash": log.InputHash,
		"success":    log.Success,
		"cache_hit":  log.CacheHit,
		"summary":    log.Summary,
		"latency_ms": log.LatencyMs,
		"created_at": log.CreatedAt,
	})
}

func (h *handler) metricsSummary(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// readImage pulls the "image" part of a multipart upload. It writes the 400
// response itself and reports false when the upload is unusable.
func (h *handler) readImage(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartSlack)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": h.tooLargeMessage()})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file found in the request"})
		return nil, false
	}
	if file.Size > h.maxUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": h.tooLargeMessage()})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image file"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, false
	}
	return data, true
}

func (h *handler) tooLargeMessage() string {
	return fmt.Sprintf("Image exceeds the %d byte upload limit", h.maxUpload)
}

// fail maps use case errors onto the JSON error contract.
func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrMissingInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": missingInputMessage(c.FullPath())})
		return
	case errors.Is(err, usecase.ErrUndecodableImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image file"})
		return
	}

	h.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.String("failed_operation", logging.OperationOf(err)),
		zap.Error(err),
	)

	var opErr *logging.OperationError
	if errors.As(err, &opErr) {
		switch opErr.Operation {
		case "usecase.extract_features":
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Feature preprocessing failed"})
			return
		case "usecase.ocr":
			c.JSON(http.StatusInternalServerError, gin.H{"error": "OCR processing failed"})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error: " + err.Error()})
}

func missingInputMessage(path string) string {
	if path == "/predict" {
		return "Content is required"
	}
	return "No image file found in the request"
}
