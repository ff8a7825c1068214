package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/firm-distillery/internal/config"
	"github.com/kirillkom/firm-distillery/internal/core/domain"
	"github.com/kirillkom/firm-distillery/internal/core/ports"
	"github.com/kirillkom/firm-distillery/internal/observability/metrics"
)

const (
	serviceName           = "api"
	maxRequestBodyBytes   = 1 << 20
	domainExtractionLimit = 100
)

// JobPublisher is the producing half of the job queue.
type JobPublisher interface {
	PublishExtractionJob(ctx context.Context, job domain.ExtractionJob) error
	PublishEmbedJob(ctx context.Context, job domain.EmbedJob) error
}

type Services struct {
	Retriever ports.Retriever
	Batch     ports.BatchExtractor
	Embedder  ports.DocumentEmbedder
	Repo      ports.ExtractionRepository
	Jobs      JobPublisher
	Catalog   *domain.ExtractionCatalog
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
	now      func() time.Time
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(cfg config.Config, services Services, opts ...Option) *Router {
	rt := &Router{
		cfg:      cfg,
		services: services,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/retrieve", rt.retrieve)
	api.HandleFunc("POST /v1/extract", rt.extract)
	api.HandleFunc("POST /v1/jobs/extract", rt.enqueueExtraction)
	api.HandleFunc("POST /v1/jobs/embed", rt.enqueueEmbed)
	api.HandleFunc("GET /v1/domains/{domain}/stats", rt.domainStats)
	api.HandleFunc("GET /v1/extraction-types", rt.extractionTypes)

	var protected http.Handler = api
	protected = apiKeyMiddleware(protected, rt.cfg.APIKey)
	protected = backpressureMiddleware(protected, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	protected = rateLimitMiddleware(protected, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("/v1/", protected)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Query string `json:"query"`
	Scope string `json:"scope"`
	K     int    `json:"k"`
	Boost string `json:"boost"`
}

type retrieveResponse struct {
	Scope  string                  `json:"scope"`
	Boost  domain.BoostField       `json:"boost"`
	Count  int                     `json:"count"`
	Chunks []domain.RetrievedChunk `json:"chunks"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	boost, err := domain.ParseBoostField(req.Boost)
	if err != nil {
		writeError(w, err)
		return
	}
	k := req.K
	if k <= 0 {
		k = rt.cfg.KChunks
	}

	started := rt.now()
	chunks, err := rt.services.Retriever.Retrieve(r.Context(), req.Query, req.Scope, k, boost)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(serviceName, string(boost), len(chunks), rt.now().Sub(started))
	}
	if chunks == nil {
		chunks = []domain.RetrievedChunk{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{
		Scope:  strings.TrimSpace(req.Scope),
		Boost:  boost,
		Count:  len(chunks),
		Chunks: chunks,
	})
}

// extract runs a synchronous batch. Large batches belong on the job queue.
func (rt *Router) extract(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.validateBatch(req); err != nil {
		writeError(w, err)
		return
	}
	if limit := rt.cfg.APIMaxSyncTargets; limit > 0 && len(req.Targets) > limit {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("at most %d targets per synchronous request, use /v1/jobs/extract", limit),
		})
		return
	}

	report := rt.services.Batch.Run(r.Context(), req)
	writeJSON(w, http.StatusOK, report)
}

type jobAccepted struct {
	JobID   string   `json:"job_id"`
	Kind    string   `json:"kind"`
	Targets []string `json:"targets"`
}

func (rt *Router) enqueueExtraction(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := rt.validateBatch(req); err != nil {
		writeError(w, err)
		return
	}

	job := domain.ExtractionJob{
		ID:         uuid.NewString(),
		Request:    req,
		EnqueuedAt: rt.now().UTC(),
	}
	err := rt.services.Jobs.PublishExtractionJob(r.Context(), job)
	rt.recordPublish("extract", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Kind: "extract", Targets: req.Targets})
}

type embedJobRequest struct {
	Targets  []string `json:"targets"`
	IsDomain bool     `json:"is_domain"`
	Force    bool     `json:"force"`
}

func (rt *Router) enqueueEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !hasTarget(req.Targets) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "targets are required"})
		return
	}

	job := domain.EmbedJob{
		ID:         uuid.NewString(),
		Targets:    req.Targets,
		IsDomain:   req.IsDomain,
		Force:      req.Force,
		EnqueuedAt: rt.now().UTC(),
	}
	err := rt.services.Jobs.PublishEmbedJob(r.Context(), job)
	rt.recordPublish("embed", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: job.ID, Kind: "embed", Targets: req.Targets})
}

type domainStatsResponse struct {
	Domain      string                    `json:"domain"`
	DomainID    string                    `json:"domain_id"`
	Chunks      *domain.ChunkStats        `json:"chunks"`
	Extractions []domain.ExtractionRecord `json:"extractions"`
}

func (rt *Router) domainStats(w http.ResponseWriter, r *http.Request) {
	name := domain.NormalizeDomain(r.PathValue("domain"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "domain is required"})
		return
	}

	resp := domainStatsResponse{
		Domain:      name,
		DomainID:    domain.DomainID(name),
		Extractions: []domain.ExtractionRecord{},
	}

	stats, err := rt.services.Embedder.Verify(r.Context(), name)
	switch {
	case err == nil:
		resp.Chunks = &stats
	case domain.IsKind(err, domain.ErrNotFound):
		// backend cannot count chunks
	default:
		writeError(w, err)
		return
	}

	if rt.services.Repo != nil {
		records, err := rt.services.Repo.ListExtractions(r.Context(), name, domainExtractionLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		if records != nil {
			resp.Extractions = records
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) extractionTypes(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	if rt.services.Catalog != nil {
		names = rt.services.Catalog.Names()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"types": names})
}

func (rt *Router) validateBatch(req domain.BatchRequest) error {
	if !hasTarget(req.Targets) {
		return domain.WrapError(domain.ErrInvalidInput, "validate batch", errors.New("targets are required"))
	}
	if rt.services.Catalog != nil {
		if _, err := rt.services.Catalog.Resolve(req.Types); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Router) recordPublish(kind string, err error) {
	if rt.metrics != nil {
		rt.metrics.RecordJobPublished(serviceName, kind, err)
	}
}

func hasTarget(targets []string) bool {
	for _, t := range targets {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
