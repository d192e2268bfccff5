package usecase

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/ml-gateway/internal/classifier"
	"github.com/example/ml-gateway/internal/detector"
	"github.com/example/ml-gateway/internal/features"
	"github.com/example/ml-gateway/internal/logging"
	"github.com/example/ml-gateway/internal/repository"
	"github.com/example/ml-gateway/internal/wound"
)

type stubRepository struct {
	savedLogs []*repository.InferenceLog
	saveErr   error
	findLog   *repository.InferenceLog
	findErr   error
	findCalls int
	rows      []repository.EndpointAggregate
	aggErr    error
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.InferenceLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) FindByRequestID(ctx context.Context, requestID string) (*repository.InferenceLog, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findLog != nil {
		return s.findLog, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) ([]repository.EndpointAggregate, error) {
	return s.rows, s.aggErr
}

type stubCache struct {
	values  map[string]string
	setErr  error
	getErr  error
	setKeys []string
	getKeys []string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

type stubExtractor struct {
	calls int
	err   error
}

func (s *stubExtractor) Extract(content, brand string) (features.FeatureVector, error) {
	s.calls++
	if s.err != nil {
		return features.FeatureVector{}, s.err
	}
	return features.FeatureVector{TextLength: float64(len(content))}, nil
}

type stubPredictor struct {
	verdicts classifier.Verdicts
	calls    int
}

func (s *stubPredictor) Predict(ctx context.Context, vec features.FeatureVector) classifier.Verdicts {
	s.calls++
	out := make(classifier.Verdicts, len(s.verdicts))
	for k, v := range s.verdicts {
		out[k] = v
	}
	return out
}

type stubReader struct {
	text  string
	err   error
	calls int
}

func (s *stubReader) Read(ctx context.Context, img image.Image) (string, error) {
	s.calls++
	return s.text, s.err
}

type stubDetector struct {
	dets  []detector.Detection
	err   error
	calls int
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image) ([]detector.Detection, error) {
	s.calls++
	return s.dets, s.err
}

type fixture struct {
	uc        *InferenceUseCase
	repo      *stubRepository
	cache     *stubCache
	extractor *stubExtractor
	predictor *stubPredictor
	reader    *stubReader
	objects   *stubDetector
	wounds    *stubDetector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kb, err := wound.DefaultKnowledgeBase()
	if err != nil {
		t.Fatalf("knowledge base: %v", err)
	}
	f := &fixture{
		repo:      &stubRepository{},
		cache:     newStubCache(),
		extractor: &stubExtractor{},
		predictor: &stubPredictor{verdicts: classifier.Verdicts{
			"Logistic_Regression": classifier.Credible,
			"Naive_Bayes":         classifier.NotCredible,
		}},
		reader:  &stubReader{text: "hello world"},
		objects: &stubDetector{},
		wounds:  &stubDetector{},
	}
	f.uc = NewInferenceUseCase(Models{
		Extractor:   f.extractor,
		Ensemble:    f.predictor,
		Objects:     f.objects,
		Wounds:      f.wounds,
		WoundMapper: wound.NewMapper(kb),
		OCR:         f.reader,
	}, f.repo, f.cache, Settings{CacheTTL: time.Minute}, zap.NewNop())
	return f
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestPredictReturnsEveryVerdict(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.Predict(context.Background(), "Some article text", "Acme")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if res.RequestID == "" {
		t.Fatal("expected request id")
	}
	if len(res.Predictions) != 2 || res.Predictions["Naive_Bayes"] != classifier.NotCredible {
		t.Fatalf("unexpected predictions %v", res.Predictions)
	}
	if len(f.repo.savedLogs) != 1 {
		t.Fatalf("expected log to be saved, got %d entries", len(f.repo.savedLogs))
	}
	log := f.repo.savedLogs[0]
	if log.Endpoint != EndpointPredict || !log.Success || log.RequestID != res.RequestID {
		t.Fatalf("unexpected log %+v", log)
	}
	if log.Summary != "Logistic_Regression=Credible;Naive_Bayes=Not Credible" {
		t.Fatalf("unexpected summary %q", log.Summary)
	}
}

func TestPredictRejectsBlankContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Predict(context.Background(), "   ", "Acme")
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.predict" {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if f.extractor.calls != 0 || len(f.repo.savedLogs) != 0 {
		t.Fatal("blank content must not reach the models")
	}
}

func TestPredictServesRepeatedInputFromCache(t *testing.T) {
	f := newFixture(t)

	first, err := f.uc.Predict(context.Background(), "text", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.uc.Predict(context.Background(), "text", features.DefaultBrand)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Cached || !second.Cached {
		t.Fatalf("expected miss then hit, got %v and %v", first.Cached, second.Cached)
	}
	if f.predictor.calls != 1 {
		t.Fatalf("expected one model run, got %d", f.predictor.calls)
	}
	if first.RequestID == second.RequestID {
		t.Fatal("request ids must be unique")
	}
	if second.Predictions["Logistic_Regression"] != classifier.Credible {
		t.Fatalf("unexpected cached predictions %v", second.Predictions)
	}
	if !strings.HasPrefix(f.cache.setKeys[0], "predict:") {
		t.Fatalf("unexpected cache key %q", f.cache.setKeys[0])
	}
}

func TestPredictDoesNotCacheFailedVerdicts(t *testing.T) {
	f := newFixture(t)
	f.predictor.verdicts["SVM"] = classifier.ErrorPrefix + "boom"

	res, err := f.uc.Predict(context.Background(), "text", "Acme")
	if err != nil {
		t.Fatalf("a failing model must not fail the request: %v", err)
	}
	if res.Predictions["SVM"] != "Error: boom" {
		t.Fatalf("unexpected verdict %q", res.Predictions["SVM"])
	}
	if len(f.cache.setKeys) != 0 {
		t.Fatalf("expected no cache writes, got %v", f.cache.setKeys)
	}
	if f.repo.savedLogs[0].Success {
		t.Fatal("expected failed log entry")
	}
}

func TestPredictToleratesCacheAndRepositoryFailures(t *testing.T) {
	f := newFixture(t)
	f.cache.getErr = errors.New("redis down")
	f.cache.setErr = errors.New("redis down")
	f.repo.saveErr = errors.New("db down")

	if _, err := f.uc.Predict(context.Background(), "text", "Acme"); err != nil {
		t.Fatalf("expected best-effort side effects, got %v", err)
	}
}

func TestPredictSurfacesPreprocessingFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("vocabulary mismatch")

	_, err := f.uc.Predict(context.Background(), "text", "Acme")
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.extract_features" {
		t.Fatalf("expected preprocessing OperationError, got %v", err)
	}
	if errors.Is(err, ErrMissingInput) {
		t.Fatal("preprocessing failure is not a client error")
	}
}

func TestExtractTextClassifiesBadUploads(t *testing.T) {
	f := newFixture(t)

	if _, err := f.uc.ExtractText(context.Background(), nil); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput for empty upload, got %v", err)
	}
	if _, err := f.uc.ExtractText(context.Background(), []byte("not an image")); !errors.Is(err, ErrUndecodableImage) {
		t.Fatalf("expected ErrUndecodableImage, got %v", err)
	}
	if f.reader.calls != 0 {
		t.Fatal("invalid uploads must not reach the OCR engine")
	}
}

func TestImageEndpointsRejectImagesAboveThePixelLimit(t *testing.T) {
	f := newFixture(t)
	f.uc.maxPixels = 15

	img := pngBytes(t)
	if _, err := f.uc.ExtractText(context.Background(), img); !errors.Is(err, ErrUndecodableImage) {
		t.Fatalf("expected ErrUndecodableImage, got %v", err)
	}
	if _, err := f.uc.DetectWounds(context.Background(), img); !errors.Is(err, ErrUndecodableImage) {
		t.Fatalf("expected ErrUndecodableImage, got %v", err)
	}
	if f.reader.calls != 0 || f.wounds.calls != 0 {
		t.Fatal("oversized images must not reach the models")
	}
}

func TestExtractTextCachesByImageHash(t *testing.T) {
	f := newFixture(t)
	img := pngBytes(t)

	for i := 0; i < 2; i++ {
		res, err := f.uc.ExtractText(context.Background(), img)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		if res.Text != "hello world" {
			t.Fatalf("unexpected text %q", res.Text)
		}
	}
	if f.reader.calls != 1 {
		t.Fatalf("expected one OCR run, got %d", f.reader.calls)
	}
	if len(f.repo.savedLogs) != 2 || !f.repo.savedLogs[1].CacheHit {
		t.Fatalf("expected second log to be a cache hit")
	}
}

func TestExtractTextWrapsEngineFailure(t *testing.T) {
	f := newFixture(t)
	f.reader.err = errors.New("tesseract missing")

	_, err := f.uc.ExtractText(context.Background(), pngBytes(t))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.ocr" {
		t.Fatalf("expected OperationError, got %v", err)
	}
	if len(f.repo.savedLogs) != 1 || f.repo.savedLogs[0].Success {
		t.Fatal("expected failed log entry")
	}
}

func TestDetectObjectsReportsEveryLabel(t *testing.T) {
	f := newFixture(t)
	f.objects.dets = []detector.Detection{{Label: "person"}, {Label: "dog"}, {Label: "person"}}

	res, err := f.uc.DetectObjects(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if strings.Join(res.Labels, ",") != "person,dog,person" {
		t.Fatalf("unexpected labels %v", res.Labels)
	}
	if !strings.HasPrefix(f.cache.setKeys[0], "objects:") {
		t.Fatalf("unexpected cache key %q", f.cache.setKeys[0])
	}
}

func TestDetectObjectsEmptyResult(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.DetectObjects(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Labels == nil || len(res.Labels) != 0 {
		t.Fatalf("expected empty non-nil labels, got %#v", res.Labels)
	}
}

func TestDetectWoundsDeduplicatesCanonicalTypes(t *testing.T) {
	f := newFixture(t)
	f.wounds.dets = []detector.Detection{{Label: "Siniak"}, {Label: "Bruise"}, {Label: "Cut"}}

	res, err := f.uc.DetectWounds(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(res.Wounds) != 2 || res.Wounds[0].WoundType != "Bruise" || res.Wounds[1].WoundType != "Cut" {
		t.Fatalf("unexpected wounds %+v", res.Wounds)
	}
	if res.Message != "Detected 2 wound types." {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if len(res.Wounds[0].FirstAid) == 0 {
		t.Fatal("expected first-aid steps")
	}
}

func TestDetectWoundsNoneFound(t *testing.T) {
	f := newFixture(t)

	res, err := f.uc.DetectWounds(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(res.Wounds) != 0 || res.Message != wound.NoneDetected {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDetectWoundsWrapsDetectorFailure(t *testing.T) {
	f := newFixture(t)
	f.wounds.err = errors.New("session closed")

	_, err := f.uc.DetectWounds(context.Background(), pngBytes(t))
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "usecase.detect_wounds" {
		t.Fatalf("expected OperationError, got %v", err)
	}
	if len(f.repo.savedLogs) != 1 || f.repo.savedLogs[0].Endpoint != EndpointWounds {
		t.Fatal("expected failed wound log entry")
	}
}

func TestGetResultReadsRepository(t *testing.T) {
	f := newFixture(t)
	expected := &repository.InferenceLog{RequestID: "req", Summary: "from-db"}
	f.repo.findLog = expected

	log, err := f.uc.GetResult(context.Background(), "req")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if log != expected {
		t.Fatalf("expected %+v, got %+v", expected, log)
	}
	if f.repo.findCalls != 1 {
		t.Fatalf("expected repository to be queried once, got %d", f.repo.findCalls)
	}
}

func TestNopRepositoryReportsNotFound(t *testing.T) {
	uc := NewInferenceUseCase(Models{}, nil, nil, Settings{}, zap.NewNop())

	if _, err := uc.GetResult(context.Background(), "req"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}

func TestGetMetricsSummaryAggregatesEndpoints(t *testing.T) {
	f := newFixture(t)
	f.repo.rows = []repository.EndpointAggregate{
		{Endpoint: EndpointOCR, TotalCount: 2, SuccessCount: 1, CacheHitCount: 1, AverageLatencyMs: 30},
		{Endpoint: EndpointPredict, TotalCount: 2, SuccessCount: 2, AverageLatencyMs: 10},
	}

	summary, err := f.uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalRequests != 4 || summary.SuccessfulRequests != 3 || summary.CacheHits != 1 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.SuccessRate != 0.75 || summary.AverageLatencyMs != 20 {
		t.Fatalf("unexpected rates %+v", summary)
	}
	if len(summary.Endpoints) != 2 || summary.Endpoints[0].SuccessRate != 0.5 {
		t.Fatalf("unexpected endpoints %+v", summary.Endpoints)
	}
}
