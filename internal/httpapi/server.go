// Package httpapi exposes the manager over a local HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"whisprd/internal/download"
	"whisprd/internal/manager"
	"whisprd/pkg/types"
)

// Service is the surface of the manager the HTTP layer drives.
type Service interface {
	Lookup(id string) (types.Model, error)
	Models(ctx context.Context) types.ModelsResponse
	Download(ctx context.Context, id string, onProgress download.ProgressFunc) (string, error)
	CancelDownload(id string) bool
	DownloadProgress(id string) (types.DownloadProgress, bool)
	Delete(id string) (types.DeleteResponse, error)
	DeleteAll() (types.DeleteResponse, error)
	Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error)
	Transcribe(ctx context.Context, id, audioPath, lang string) (types.TranscribeResponse, error)
	StartServer(ctx context.Context, id string) error
	StopServer()
	ServerStatus() types.ServerStatus
	GpuStatus(ctx context.Context) types.GpuStatus
	ConverterStatus(ctx context.Context) types.ConverterStatus
	SetGPUPreference(pref string)
}

type api struct {
	svc Service
	log zerolog.Logger
}

// NewRouter builds the daemon's HTTP handler.
func NewRouter(log zerolog.Logger, svc Service) http.Handler {
	a := &api{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(MetricsMiddleware)
	r.Use(requestLogger(log))

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/models", func(r chi.Router) {
		r.Get("/", a.listModels)
		r.Delete("/", a.deleteAllModels)
		r.Post("/{id}/download", a.downloadModel)
		r.Delete("/{id}", a.deleteModel)
	})
	r.Route("/downloads", func(r chi.Router) {
		r.Get("/{id}", a.downloadProgress)
		r.Delete("/{id}", a.cancelDownload)
	})

	r.Post("/infer", a.infer)
	r.Post("/transcribe", a.transcribe)

	r.Route("/server", func(r chi.Router) {
		r.Get("/status", a.serverStatus)
		r.Post("/start", a.startServer)
		r.Post("/stop", a.stopServer)
	})
	r.Route("/gpu", func(r chi.Router) {
		r.Get("/status", a.gpuStatus)
		r.Put("/preference", a.setGpuPreference)
	})
	r.Get("/converter/status", a.converterStatus)

	return r
}

func (a *api) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *api) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Models(r.Context()))
}

func (a *api) downloadModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := a.svc.Download(r.Context(), id, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.DownloadResponse{ModelID: id, Path: path})
}

// downloadProgress reports an in-flight transfer, or the terminal state when
// none is in flight: complete for an installed model, absent otherwise.
func (a *api) downloadProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if p, ok := a.svc.DownloadProgress(id); ok {
		writeJSON(w, http.StatusOK, p)
		return
	}
	if _, err := a.svc.Lookup(id); err != nil {
		writeError(w, err)
		return
	}
	status := types.DownloadAbsent
	for _, st := range a.svc.Models(r.Context()).Models {
		if st.ID == id && st.Downloaded {
			status = types.DownloadComplete
		}
	}
	writeJSON(w, http.StatusOK, types.DownloadProgress{ModelID: id, Status: status})
}

func (a *api) cancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": a.svc.CancelDownload(id)})
}

func (a *api) deleteModel(w http.ResponseWriter, r *http.Request) {
	resp, err := a.svc.Delete(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) deleteAllModels(w http.ResponseWriter, _ *http.Request) {
	resp, err := a.svc.DeleteAll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) infer(w http.ResponseWriter, r *http.Request) {
	var req types.InferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "", "invalid JSON body: "+err.Error())
		return
	}
	if req.Model == "" || req.Prompt == "" {
		writeJSONError(w, http.StatusBadRequest, "", "model and prompt are required")
		return
	}
	resp, err := a.svc.Infer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) transcribe(w http.ResponseWriter, r *http.Request) {
	var req types.TranscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "", "invalid JSON body: "+err.Error())
		return
	}
	if req.Model == "" || req.AudioPath == "" {
		writeJSONError(w, http.StatusBadRequest, "", "model and audio_path are required")
		return
	}
	resp, err := a.svc.Transcribe(r.Context(), req.Model, req.AudioPath, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) serverStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ServerStatus())
}

func (a *api) startServer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeJSONError(w, http.StatusBadRequest, "", "model is required")
		return
	}
	if err := a.svc.StartServer(r.Context(), req.Model); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.svc.ServerStatus())
}

func (a *api) stopServer(w http.ResponseWriter, _ *http.Request) {
	a.svc.StopServer()
	writeJSON(w, http.StatusOK, a.svc.ServerStatus())
}

func (a *api) gpuStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.GpuStatus(r.Context()))
}

func (a *api) setGpuPreference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preference string `json:"preference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Preference == "" {
		writeJSONError(w, http.StatusBadRequest, "", "preference is required")
		return
	}
	a.svc.SetGPUPreference(req.Preference)
	writeJSON(w, http.StatusOK, a.svc.GpuStatus(r.Context()))
}

func (a *api) converterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.ConverterStatus(r.Context()))
}

// interface conformance
var _ Service = (*manager.Manager)(nil)
