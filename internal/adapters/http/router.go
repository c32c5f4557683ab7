package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surgiscan/docintake/internal/config"
	"github.com/surgiscan/docintake/internal/core/domain"
	"github.com/surgiscan/docintake/internal/core/ports"
	"github.com/surgiscan/docintake/internal/observability/metrics"
)

const serviceName = "docintake-api"

// HealthChecker probes one infrastructure dependency for the health endpoint.
type HealthChecker struct {
	Name  string
	Check func() error
}

type Router struct {
	cfg       config.Config
	intake    ports.DocumentIntake
	reader    ports.DocumentReader
	validator ports.DocumentValidator
	stats     ports.StatisticsProvider
	metrics   *metrics.HTTPServerMetrics
	checkers  []HealthChecker
}

func NewRouter(
	cfg config.Config,
	intake ports.DocumentIntake,
	reader ports.DocumentReader,
	validator ports.DocumentValidator,
	stats ports.StatisticsProvider,
	serverMetrics *metrics.HTTPServerMetrics,
	checkers []HealthChecker,
) *Router {
	return &Router{
		cfg:       cfg,
		intake:    intake,
		reader:    reader,
		validator: validator,
		stats:     stats,
		metrics:   serverMetrics,
		checkers:  checkers,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rt.health)
	mux.HandleFunc("/api/v1/historic-documents/upload", rt.uploadDocument)
	mux.HandleFunc("/api/v1/historic-documents/batch-upload", rt.batchUpload)
	mux.HandleFunc("/api/v1/historic-documents/", rt.documentSubroutes)
	mux.HandleFunc("/api/v1/statistics", rt.statistics)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = bearerAuthMiddleware(handler, rt.cfg.APIAuthToken, rt.metrics)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWait)*time.Millisecond, rt.metrics)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.metrics)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	components := map[string]string{}
	healthy := true
	for _, checker := range rt.checkers {
		if err := checker.Check(); err != nil {
			components[checker.Name] = err.Error()
			healthy = false
			continue
		}
		components[checker.Name] = "ok"
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	input, err := rt.submitInputFromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer input.close()

	rec, duplicate, err := rt.intake.Submit(r.Context(), input.SubmitInput)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// An already known payload answers with the existing record instead of
	// queueing a second pass.
	if duplicate {
		if rt.metrics != nil {
			rt.metrics.RecordDuplicate(serviceName)
		}
		writeJSON(w, http.StatusOK, newUploadResponse(rec))
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, string(rec.Mode), input.size)
	}
	writeJSON(w, http.StatusAccepted, newUploadResponse(rec))
}

type uploadResponse struct {
	Success            bool                     `json:"success"`
	DocumentID         string                   `json:"document_id"`
	Status             domain.DocumentStatus    `json:"status"`
	DocumentTypesFound []string                 `json:"document_types_found"`
	ExtractedData      domain.ExtractedData     `json:"extracted_data"`
	ConfidenceScore    float64                  `json:"confidence_score"`
	NeedsValidation    bool                     `json:"needs_validation"`
	Summary            domain.ProcessingSummary `json:"processing_summary"`
}

func newUploadResponse(rec *domain.DocumentRecord) uploadResponse {
	return uploadResponse{
		Success:            rec.Status != domain.StatusFailed,
		DocumentID:         rec.ID,
		Status:             rec.Status,
		DocumentTypesFound: rec.DocumentTypesFound,
		ExtractedData:      rec.ExtractedData,
		ConfidenceScore:    rec.ConfidenceScore,
		NeedsValidation:    rec.NeedsValidation,
		Summary:            rec.Summary,
	}
}

type batchItem struct {
	Filename  string                 `json:"filename"`
	Accepted  bool                   `json:"accepted"`
	Duplicate bool                   `json:"duplicate,omitempty"`
	Document  *domain.DocumentRecord `json:"document,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func (rt *Router) batchUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := r.ParseMultipartForm(rt.cfg.MaxFileBytes()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}
	if len(files) > rt.cfg.MaxBatchFiles {
		writeError(w, http.StatusBadRequest, "too many files in batch")
		return
	}

	mode, err := domain.ParseProcessingMode(r.FormValue("processing_mode"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	persist := parsePersistFlag(r.FormValue("save_to_database"))

	items := make([]batchItem, 0, len(files))
	accepted := 0
	for _, header := range files {
		item := batchItem{Filename: header.Filename}
		file, err := header.Open()
		if err != nil {
			item.Error = "unreadable file part"
			items = append(items, item)
			continue
		}

		rec, duplicate, err := rt.intake.Submit(r.Context(), ports.SubmitInput{
			Filename: header.Filename,
			Mode:     mode,
			Persist:  persist,
			Body:     file,
		})
		_ = file.Close()
		if err != nil {
			item.Error = err.Error()
			items = append(items, item)
			continue
		}

		item.Accepted = true
		item.Duplicate = duplicate
		item.Document = rec
		accepted++
		items = append(items, item)
	}

	if rt.metrics != nil {
		rt.metrics.RecordBatch(serviceName, len(files))
	}

	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"batch_id": uuid.NewString(),
		"total":    len(files),
		"accepted": accepted,
		"results":  items,
	})
}

func (rt *Router) documentSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/historic-documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	switch sub {
	case "":
		rt.getDocument(w, r, id)
	case "status":
		rt.getStatus(w, r, id)
	case "validate":
		rt.validateDocument(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) getStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":          rec.ID,
		"status":               rec.Status,
		"terminal":             rec.Status.Terminal(),
		"document_types_found": rec.DocumentTypesFound,
		"needs_validation":     rec.NeedsValidation,
		"failure_reason":       rec.FailureReason,
		"updated_at":           rec.UpdatedAt,
	})
}

func (rt *Router) validateDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		ValidatedData   domain.ExtractedData `json:"extracted_data"`
		ValidationNotes string               `json:"validation_notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, err := rt.validator.Validate(r.Context(), id, req.ValidatedData, req.ValidationNotes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordValidation(serviceName)
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) statistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := rt.stats.Statistics(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type submitRequest struct {
	ports.SubmitInput
	size    int64
	cleanup func()
}

func (s *submitRequest) close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (rt *Router) submitInputFromRequest(r *http.Request) (*submitRequest, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "upload",
			errMultipartFile)
	}

	mode, err := domain.ParseProcessingMode(r.FormValue("processing_mode"))
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	return &submitRequest{
		SubmitInput: ports.SubmitInput{
			Filename: header.Filename,
			Mode:     mode,
			Persist:  parsePersistFlag(r.FormValue("save_to_database")),
			Body:     file,
		},
		size:    header.Size,
		cleanup: func() { _ = file.Close() },
	}, nil
}

// save_to_database defaults to true; only an explicit "false"/"0"/"no" disables
// payload retention.
func parsePersistFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "0", "no":
		return false
	default:
		return true
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}
