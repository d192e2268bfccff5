package usecase

import "context"

// EndpointMetrics holds the counters of one endpoint.
type EndpointMetrics struct {
	Endpoint           string  `json:"endpoint"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	CacheHits          int64   `json:"cache_hits"`
	SuccessRate        float64 `json:"success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
}

// MetricsSummary represents aggregated inference insights.
type MetricsSummary struct {
	TotalRequests      int64             `json:"total_requests"`
	SuccessfulRequests int64             `json:"successful_requests"`
	CacheHits          int64             `json:"cache_hits"`
	SuccessRate        float64           `json:"success_rate"`
	AverageLatencyMs   float64           `json:"average_latency_ms"`
	Endpoints          []EndpointMetrics `json:"endpoints"`
}

// GetMetricsSummary aggregates inference metrics from persisted logs.
func (uc *InferenceUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	rows, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{Endpoints: make([]EndpointMetrics, 0, len(rows))}
	var latencySum float64
	for _, row := range rows {
		m := EndpointMetrics{
			Endpoint:           row.Endpoint,
			TotalRequests:      row.TotalCount,
			SuccessfulRequests: row.SuccessCount,
			CacheHits:          row.CacheHitCount,
			AverageLatencyMs:   row.AverageLatencyMs,
		}
		if row.TotalCount > 0 {
			m.SuccessRate = float64(row.SuccessCount) / float64(row.TotalCount)
		}
		summary.Endpoints = append(summary.Endpoints, m)

		summary.TotalRequests += row.TotalCount
		summary.SuccessfulRequests += row.SuccessCount
		summary.CacheHits += row.CacheHitCount
		latencySum += row.AverageLatencyMs * float64(row.TotalCount)
	}

	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRequests) / float64(summary.TotalRequests)
		summary.AverageLatencyMs = latencySum / float64(summary.TotalRequests)
	}

	return summary, nil
}
