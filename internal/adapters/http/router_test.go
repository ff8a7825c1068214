package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/observability/metrics"
)

type retrieverFake struct {
	chunks []domain.RetrievedChunk
	err    error

	gotScope string
	gotK     int
	gotBoost domain.BoostField
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, scope string, k int, boost domain.BoostField) ([]domain.RetrievedChunk, error) {
	f.gotScope, f.gotK, f.gotBoost = scope, k, boost
	return f.chunks, f.err
}

type batchFake struct {
	got *domain.BatchRequest
}

func (f *batchFake) Run(_ context.Context, req domain.BatchRequest) domain.BatchReport {
	f.got = &req
	return domain.BatchReport{TotalTargets: len(req.Targets), Successful: len(req.Targets), FailedTargets: []string{}}
}

type embedderFake struct {
	stats domain.ChunkStats
	err   error
}

func (f embedderFake) EmbedDocument(context.Context, string, string, bool) (domain.EmbedReport, error) {
	return domain.EmbedReport{}, nil
}

func (f embedderFake) EmbedDomain(context.Context, string, bool) ([]domain.EmbedReport, error) {
	return nil, nil
}

func (f embedderFake) EmbedTargets(context.Context, []string, bool, bool) ([]domain.EmbedReport, error) {
	return nil, nil
}

func (f embedderFake) Verify(context.Context, string) (domain.ChunkStats, error) {
	return f.stats, f.err
}

func (f embedderFake) ClearDomain(context.Context, string) error { return nil }

type repoFake struct {
	records   []domain.ExtractionRecord
	gotDomain string
}

func (f *repoFake) SaveExtraction(context.Context, *domain.ExtractionRecord) error { return nil }

func (f *repoFake) ListExtractions(_ context.Context, name string, _ int) ([]domain.ExtractionRecord, error) {
	f.gotDomain = name
	return f.records, nil
}

func (f *repoFake) Stats(context.Context) (domain.ExtractionStats, error) {
	return domain.ExtractionStats{}, nil
}

type jobsFake struct {
	extraction []domain.ExtractionJob
	embed      []domain.EmbedJob
	err        error
}

func (f *jobsFake) PublishExtractionJob(_ context.Context, job domain.ExtractionJob) error {
	f.extraction = append(f.extraction, job)
	return f.err
}

func (f *jobsFake) PublishEmbedJob(_ context.Context, job domain.EmbedJob) error {
	f.embed = append(f.embed, job)
	return f.err
}

type testDeps struct {
	retriever *retrieverFake
	batch     *batchFake
	embedder  embedderFake
	repo      *repoFake
	jobs      *jobsFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		retriever: &retrieverFake{},
		batch:     &batchFake{},
		repo:      &repoFake{},
		jobs:      &jobsFake{},
	}
}

func (d *testDeps) handler(t *testing.T, cfg config.Config, opts ...Option) http.Handler {
	t.Helper()
	catalog, err := domain.NewExtractionCatalog(domain.DefaultExtractionTypes())
	if err != nil {
		t.Fatalf("NewExtractionCatalog() error = %v", err)
	}
	if cfg.KChunks == 0 {
		cfg.KChunks = 4
	}
	return NewRouter(cfg, Services{
		Retriever: d.retriever,
		Batch:     d.batch,
		Embedder:  d.embedder,
		Repo:      d.repo,
		Jobs:      d.jobs,
		Catalog:   catalog,
	}, opts...).Handler()
}

func newTestHandler(cfg config.Config) http.Handler {
	d := newTestDeps()
	return NewRouter(cfg, Services{
		Retriever: d.retriever,
		Batch:     d.batch,
		Embedder:  d.embedder,
		Repo:      d.repo,
		Jobs:      d.jobs,
	}).Handler()
}

func doJSON(handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	res := doJSON(newTestHandler(config.Config{}), http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestRetrieveUsesDefaultKAndParsesBoost(t *testing.T) {
	d := newTestDeps()
	d.retriever.chunks = []domain.RetrievedChunk{{Chunk: domain.Chunk{ID: "c1", Content: "Call 555-123-4567"}, Distance: 0.2}}
	handler := d.handler(t, config.Config{KChunks: 3})

	res := doJSON(handler, http.MethodPost, "/v1/retrieve", map[string]any{
		"query": "phone",
		"scope": "smithlaw.com",
		"boost": "contact",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if d.retriever.gotK != 3 || d.retriever.gotScope != "smithlaw.com" || d.retriever.gotBoost != domain.BoostContact {
		t.Fatalf("unexpected retriever call k=%d scope=%q boost=%q", d.retriever.gotK, d.retriever.gotScope, d.retriever.gotBoost)
	}

	var resp retrieveResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || resp.Chunks[0].ID != "c1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRetrieveRejectsUnknownBoost(t *testing.T) {
	d := newTestDeps()
	res := doJSON(d.handler(t, config.Config{}), http.MethodPost, "/v1/retrieve", map[string]any{
		"query": "phone", "scope": "smithlaw.com", "boost": "fax_numbers",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveMapsDomainInvalidInputTo400(t *testing.T) {
	d := newTestDeps()
	d.retriever.err = domain.WrapError(domain.ErrInvalidInput, "resolve scope", errors.New("scope is empty"))
	res := doJSON(d.handler(t, config.Config{}), http.MethodPost, "/v1/retrieve", map[string]any{"query": "phone"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveRejectsWrongMethod(t *testing.T) {
	d := newTestDeps()
	res := doJSON(d.handler(t, config.Config{}), http.MethodGet, "/v1/retrieve", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestExtractRunsBatch(t *testing.T) {
	d := newTestDeps()
	res := doJSON(d.handler(t, config.Config{}), http.MethodPost, "/v1/extract", map[string]any{
		"targets":   []string{"smithlaw.com", "jones.com"},
		"types":     []string{"contact_info"},
		"is_domain": true,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if d.batch.got == nil || !d.batch.got.IsDomain || len(d.batch.got.Targets) != 2 {
		t.Fatalf("unexpected batch request %+v", d.batch.got)
	}
}

func TestExtractRejectsUnknownTypeAndTooManyTargets(t *testing.T) {
	d := newTestDeps()
	handler := d.handler(t, config.Config{APIMaxSyncTargets: 1})

	res := doJSON(handler, http.MethodPost, "/v1/extract", map[string]any{
		"targets": []string{"smithlaw.com"},
		"types":   []string{"favorite_color"},
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("unknown type: expected 400, got %d", res.Code)
	}

	res = doJSON(handler, http.MethodPost, "/v1/extract", map[string]any{
		"targets": []string{"smithlaw.com", "jones.com"},
	})
	if res.Code != http.StatusBadRequest || !strings.Contains(res.Body.String(), "/v1/jobs/extract") {
		t.Fatalf("too many targets: expected 400 pointing at jobs, got %d %s", res.Code, res.Body.String())
	}
	if d.batch.got != nil {
		t.Fatalf("batch must not run for rejected requests")
	}
}

func TestEnqueueJobs(t *testing.T) {
	d := newTestDeps()
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := d.handler(t, config.Config{}, WithMetrics(m))

	res := doJSON(handler, http.MethodPost, "/v1/jobs/extract", map[string]any{"targets": []string{"smithlaw.com"}, "types": []string{"all"}})
	if res.Code != http.StatusAccepted {
		t.Fatalf("extract job: expected 202, got %d", res.Code)
	}
	var accepted jobAccepted
	if err := json.Unmarshal(res.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(d.jobs.extraction) != 1 || d.jobs.extraction[0].ID != accepted.JobID || accepted.JobID == "" {
		t.Fatalf("unexpected published extraction jobs %+v (accepted %+v)", d.jobs.extraction, accepted)
	}

	res = doJSON(handler, http.MethodPost, "/v1/jobs/embed", map[string]any{"targets": []string{"smithlaw.com"}, "is_domain": true, "force": true})
	if res.Code != http.StatusAccepted {
		t.Fatalf("embed job: expected 202, got %d", res.Code)
	}
	if len(d.jobs.embed) != 1 || !d.jobs.embed[0].Force || !d.jobs.embed[0].IsDomain {
		t.Fatalf("unexpected published embed jobs %+v", d.jobs.embed)
	}

	res = doJSON(handler, http.MethodPost, "/v1/jobs/embed", map[string]any{"targets": []string{" "}})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("blank targets: expected 400, got %d", res.Code)
	}
}

func TestEnqueueMapsTemporaryQueueErrorTo503(t *testing.T) {
	d := newTestDeps()
	d.jobs.err = domain.WrapError(domain.ErrTemporary, "nats.publish", errors.New("connection closed"))
	res := doJSON(d.handler(t, config.Config{}), http.MethodPost, "/v1/jobs/extract", map[string]any{"targets": []string{"smithlaw.com"}})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestDomainStats(t *testing.T) {
	d := newTestDeps()
	d.embedder = embedderFake{stats: domain.ChunkStats{Chunks: 12, Documents: 3}}
	d.repo.records = []domain.ExtractionRecord{{ID: "r1", Domain: "smithlaw.com", Name: "year_founded", Status: domain.StatusSuccess}}

	res := doJSON(d.handler(t, config.Config{}), http.MethodGet, "/v1/domains/www.SmithLaw.com/stats", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp domainStatsResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Domain != "smithlaw.com" || resp.DomainID != domain.DomainID("smithlaw.com") {
		t.Fatalf("unexpected domain %q / %q", resp.Domain, resp.DomainID)
	}
	if resp.Chunks == nil || resp.Chunks.Chunks != 12 || len(resp.Extractions) != 1 {
		t.Fatalf("unexpected stats %+v", resp)
	}
	if d.repo.gotDomain != "smithlaw.com" {
		t.Fatalf("repository queried with %q", d.repo.gotDomain)
	}
}

func TestDomainStatsWithoutChunkCounts(t *testing.T) {
	d := newTestDeps()
	d.embedder = embedderFake{err: domain.WrapError(domain.ErrNotFound, "verify", errors.New("backend does not report stats"))}

	res := doJSON(d.handler(t, config.Config{}), http.MethodGet, "/v1/domains/smithlaw.com/stats", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"chunks":null`) {
		t.Fatalf("expected null chunk stats, got %s", res.Body.String())
	}
}

func TestAPIKeyProtectsV1Routes(t *testing.T) {
	d := newTestDeps()
	handler := d.handler(t, config.Config{APIKey: "secret"})

	res := doJSON(handler, http.MethodGet, "/v1/extraction-types", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/extraction-types", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "office_locations") {
		t.Fatalf("expected 200 with types, got %d %s", rec.Code, rec.Body.String())
	}

	if res := doJSON(handler, http.MethodGet, "/healthz", nil); res.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d := newTestDeps()
	handler := d.handler(t, config.Config{}, WithMetrics(metrics.NewHTTPServerMetrics(serviceName)))

	_ = doJSON(handler, http.MethodGet, "/healthz", nil)
	res := doJSON(handler, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "distillery_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrMalformedOutput, "op", errors.New("x")), http.StatusBadGateway},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
