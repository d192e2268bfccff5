package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the process configuration read from the environment.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	MaxUploadBytes  int64
	MaxImagePixels  int64

	ModelDir       string
	TextManifest   string
	ONNXRuntimeLib string

	YOLOModel      string
	YOLONames      string
	WoundModel     string
	WoundNames     string
	WoundKnowledge string

	DetectorInputSize  int
	DetectorConfidence float32
	DetectorIoU        float32

	OCRBackend   string
	OCRLanguages []string
	OCRGRPCAddr  string

	RedisAddr string
	CacheTTL  time.Duration

	DatabaseDSN string

	JWTSecret   string
	JWTAudience string
}

// Load reads the configuration from environment variables. Artifact paths are
// resolved against MODEL_DIR unless absolute.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":5000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ModelDir:       getEnv("MODEL_DIR", "model_weights"),
		ONNXRuntimeLib: os.Getenv("ONNXRUNTIME_LIB"),
		OCRBackend:     strings.ToLower(getEnv("OCR_BACKEND", "tesseract")),
		OCRGRPCAddr:    os.Getenv("OCR_GRPC_ADDR"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		JWTSecret:      strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAudience:    strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		OCRLanguages:   splitList(getEnv("OCR_LANGUAGES", "eng")),
	}

	cfg.TextManifest = cfg.resolve(getEnv("TEXT_MANIFEST", "text_models.json"))
	cfg.YOLOModel = cfg.resolve(getEnv("YOLO_MODEL", "yolov8n.onnx"))
	cfg.YOLONames = cfg.resolve(getEnv("YOLO_NAMES", "yolov8n.yaml"))
	cfg.WoundModel = cfg.resolve(getEnv("WOUND_MODEL", "best.onnx"))
	cfg.WoundNames = cfg.resolve(getEnv("WOUND_NAMES", "best.yaml"))
	if kb := os.Getenv("WOUND_KNOWLEDGE"); kb != "" {
		cfg.WoundKnowledge = cfg.resolve(kb)
	}

	var err error
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = int64Env("MAX_UPLOAD_BYTES", 10<<20); err != nil {
		return nil, err
	}
	if cfg.MaxImagePixels, err = int64Env("MAX_IMAGE_PIXELS", 40_000_000); err != nil {
		return nil, err
	}
	size, err := int64Env("DETECTOR_INPUT_SIZE", 640)
	if err != nil {
		return nil, err
	}
	cfg.DetectorInputSize = int(size)
	if cfg.DetectorConfidence, err = float32Env("DETECTOR_CONFIDENCE", 0.25); err != nil {
		return nil, err
	}
	if cfg.DetectorIoU, err = float32Env("DETECTOR_IOU", 0.7); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels)
	}
	if c.DetectorInputSize <= 0 || c.DetectorInputSize%32 != 0 {
		return fmt.Errorf("DETECTOR_INPUT_SIZE must be a positive multiple of 32, got %d", c.DetectorInputSize)
	}
	if c.DetectorConfidence <= 0 || c.DetectorConfidence > 1 {
		return fmt.Errorf("DETECTOR_CONFIDENCE must be within (0,1], got %v", c.DetectorConfidence)
	}
	if c.DetectorIoU <= 0 || c.DetectorIoU > 1 {
		return fmt.Errorf("DETECTOR_IOU must be within (0,1], got %v", c.DetectorIoU)
	}
	switch c.OCRBackend {
	case "tesseract":
	case "grpc":
		if c.OCRGRPCAddr == "" {
			return fmt.Errorf("OCR_GRPC_ADDR is required when OCR_BACKEND=grpc")
		}
	default:
		return fmt.Errorf("unknown OCR_BACKEND %q", c.OCRBackend)
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.ModelDir, path)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func float32Env(key string, fallback float32) (float32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return float32(v), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
