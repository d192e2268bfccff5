package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/ml-gateway/internal/logging"
)

// ErrNotFound is returned when no log matches a request id.
var ErrNotFound = errors.New("inference log not found")

// InferenceLog represents one served inference request.
type InferenceLog struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Endpoint  string    `gorm:"column:endpoint;index;size:32"`
	InputHash string    `gorm:"column:input_hash;index;size:40"`
	Success   bool      `gorm:"column:success"`
	CacheHit  bool      `gorm:"column:cache_hit"`
	Summary   string    `gorm:"column:summary;type:text"`
	LatencyMs int64     `gorm:"column:latency_ms"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (InferenceLog) TableName() string {
	return "inference_logs"
}

// EndpointAggregate holds per-endpoint counters computed in the database.
type EndpointAggregate struct {
	Endpoint         string
	TotalCount       int64
	SuccessCount     int64
	CacheHitCount    int64
	AverageLatencyMs float64
}

// InferenceRepository provides persistence APIs for inference logs.
type InferenceRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewInferenceRepository creates a new repository instance.
func NewInferenceRepository(db *gorm.DB, logger *zap.Logger) *InferenceRepository {
	return &InferenceRepository{db: db, logger: logger.Named("inference_repository")}
}

// AutoMigrate ensures the schema is available.
func (r *InferenceRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&InferenceLog{})
}

// SaveLog persists an inference log entry.
func (r *InferenceRepository) SaveLog(ctx context.Context, log *InferenceLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return logging.NewOperationError("repository.save_log", log.RequestID, err)
	}
	return nil
}

// FindByRequestID retrieves the log written for a request.
func (r *InferenceRepository) FindByRequestID(ctx context.Context, requestID string) (*InferenceLog, error) {
	var log InferenceLog
	err := r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, logging.NewOperationError("repository.find_by_request_id", requestID, err)
	}
	return &log, nil
}

// AggregateMetrics groups request counters and latency by endpoint.
func (r *InferenceRepository) AggregateMetrics(ctx context.Context) ([]EndpointAggregate, error) {
	var rows []EndpointAggregate
	err := r.db.WithContext(ctx).
		Model(&InferenceLog{}).
		Select(`endpoint,
			count(*) as total_count,
			sum(case when success then 1 else 0 end) as success_count,
			sum(case when cache_hit then 1 else 0 end) as cache_hit_count,
			coalesce(avg(latency_ms), 0) as average_latency_ms`).
		Group("endpoint").
		Order("endpoint").
		Scan(&rows).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.aggregate_metrics", "", err)
	}
	return rows, nil
}
