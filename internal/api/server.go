package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"nextgoal/internal/model"
	"nextgoal/internal/pipeline"
	"nextgoal/internal/scraper"
	"nextgoal/internal/storage"
	"nextgoal/internal/verifier"
)

// Store 抽象职位查询接口。
type Store interface {
	ListJobs(ctx context.Context, opts storage.JobQueryOptions) ([]model.Job, error)
	CountJobs(ctx context.Context, opts storage.JobQueryOptions) (int64, error)
	GetStats(ctx context.Context) (storage.Stats, error)
}

// Ingestor 抽象入库管道的触发入口。
type Ingestor interface {
	IngestCompany(ctx context.Context, source, companyID string) (pipeline.CompanyResult, error)
	IngestAllConfigured(ctx context.Context) pipeline.FullScrapeResult
	Reclassify(ctx context.Context) pipeline.ReclassifyResult
	Companies() []scraper.Company
}

// Verifier 抽象验证引擎的触发入口。
type Verifier interface {
	VerifyOne(ctx context.Context, id uint) error
	VerifyAll(ctx context.Context) (verifier.Result, error)
}

// AIStatus 暴露分类器状态。
type AIStatus interface {
	Enabled() bool
	Model() string
}

// NewHandler 构造 HTTP 多路复用器，供外部调度方与前端调用。
func NewHandler(store Store, ingest Ingestor, verif Verifier, ai AIStatus) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 {
				if v > 100 {
					v = 100
				}
				limit = v
			}
		}
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v
			}
		}

		opts := storage.JobQueryOptions{
			Limit:    limit + 1,
			Offset:   (page - 1) * limit,
			Search:   r.URL.Query().Get("search"),
			Location: r.URL.Query().Get("location"),
			Company:  r.URL.Query().Get("company"),
		}
		if v := r.URL.Query().Get("job_type"); v != "" {
			opts.JobTypes = splitCSV(v)
		}
		if v := r.URL.Query().Get("experience_level"); v != "" {
			opts.ExperienceLevels = splitCSV(v)
		}

		jobs, err := store.ListJobs(r.Context(), opts)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		countOpts := opts
		countOpts.Limit = 0
		countOpts.Offset = 0
		total, err := store.CountJobs(r.Context(), countOpts)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		hasMore := false
		if len(jobs) > limit {
			hasMore = true
			jobs = jobs[:limit]
		}

		w.Header().Set("X-Page", strconv.Itoa(page))
		w.Header().Set("X-Limit", strconv.Itoa(limit))
		w.Header().Set("X-Has-More", strconv.FormatBool(hasMore))
		w.Header().Set("X-Total", strconv.FormatInt(total, 10))
		writeJSON(w, http.StatusOK, jobs)
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetStats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	mux.HandleFunc("/api/scrape", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ingest.IngestAllConfigured(r.Context()))
	})

	mux.HandleFunc("/api/scrape/company", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		source := r.URL.Query().Get("source")
		companyID := r.URL.Query().Get("company_id")
		if source == "" || companyID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source and company_id are required"})
			return
		}
		res, err := ingest.IngestCompany(r.Context(), source, companyID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/api/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		res, err := verif.VerifyAll(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/api/verify/job", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
			return
		}
		if err := verif.VerifyOne(r.Context(), uint(id)); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/reclassify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, ingest.Reclassify(r.Context()))
	})

	mux.HandleFunc("/api/ai-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"enabled": ai != nil && ai.Enabled(),
			"model":   aiModel(ai),
		})
	})

	mux.HandleFunc("/api/companies", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ingest.Companies())
	})

	return mux
}

func aiModel(ai AIStatus) string {
	if ai == nil {
		return ""
	}
	return ai.Model()
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
