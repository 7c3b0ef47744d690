package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/mediscan/mediscan-api/internal/application/analysis"
	"github.com/mediscan/mediscan-api/internal/application/images"
	"github.com/mediscan/mediscan-api/internal/application/trial"
	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
	"github.com/mediscan/mediscan-api/internal/middleware"
)

type Router struct {
	svc     *appanalysis.Service
	gate    *trial.Gate
	devMode bool
}

func NewRouter(svc *appanalysis.Service, gate *trial.Gate, devMode bool) http.Handler {
	r := &Router{svc: svc, gate: gate, devMode: devMode}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Install-ID"},
		MaxAge:         300,
	}))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleAnalyze))
		rt.Get("/trial", r.wrap(r.handleTrialStatus))

		rt.Group(func(auth chi.Router) {
			auth.Use(middleware.RequireAuth)
			auth.Get("/analyses", r.wrap(r.handleHistory))
			auth.Get("/analyses/{id}", r.wrap(r.handleGet))
			auth.Delete("/analyses/{id}", r.wrap(r.handleDelete))
			auth.Post("/trial/reset", r.wrap(r.handleTrialReset))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap translates domain errors to HTTP statuses and keeps raw provider
// errors out of responses unless development mode is on.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var ferr *domain.FailedError
		switch {
		case errors.Is(err, domain.ErrInvalidImage):
			r.fail(w, http.StatusBadRequest, "Image invalide. Veuillez fournir une image de médicament.", err)
		case errors.Is(err, domain.ErrImageTooLarge):
			r.fail(w, http.StatusRequestEntityTooLarge, "L'image est trop volumineuse (maximum 5 Mo).", err)
		case errors.Is(err, domain.ErrTrialExhausted):
			middleware.IncrementTrialRejections()
			r.fail(w, http.StatusForbidden, "Vous avez utilisé vos analyses gratuites. Inscrivez-vous pour continuer.", err)
		case errors.Is(err, domain.ErrNotFound):
			r.fail(w, http.StatusNotFound, "Analyse introuvable.", err)
		case errors.As(err, &ferr):
			middleware.IncrementAnalysesFailed()
			status := http.StatusBadGateway
			if errors.Is(ferr.Cause, domain.ErrQuotaExceeded) {
				status = http.StatusTooManyRequests
			} else if errors.Is(ferr.Cause, domain.ErrSafetyBlocked) {
				status = http.StatusUnprocessableEntity
			}
			r.fail(w, status, ferr.UserMessage(), err)
		default:
			r.fail(w, http.StatusInternalServerError, "Une erreur interne est survenue.", err)
		}
	}
}

func (r *Router) fail(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]any{
		"success": false,
		"message": message,
	}
	if r.devMode && err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// POST /v1/analyses
// Accepts multipart form-data with an "image" part, or JSON with a base64
// data URL: {"image": "data:image/jpeg;base64,..."}.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	img, filename, err := acquireImage(req)
	if err != nil {
		return err
	}

	result, err := r.svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
		Image:     img,
		Filename:  filename,
		OwnerID:   middleware.GetUserID(req.Context()),
		InstallID: middleware.GetInstallID(req.Context()),
	})
	if err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	if result.Degraded {
		middleware.IncrementAnalysesDegraded()
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

func acquireImage(req *http.Request) (domain.SourceImage, string, error) {
	contentType := req.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := req.FormFile("image")
		if err != nil {
			return domain.SourceImage{}, "", domain.ErrInvalidImage
		}
		defer file.Close()
		img, err := images.FromReader(file, header.Header.Get("Content-Type"), header.Size)
		return img, header.Filename, err
	}

	var body struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return domain.SourceImage{}, "", domain.ErrInvalidImage
	}
	img, err := images.FromDataURL(body.Image)
	return img, "capture.jpg", err
}

// GET /v1/analyses?limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	list, err := r.svc.History(req.Context(), middleware.GetUserID(req.Context()), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.AnalysisRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%s: %w", err, domain.ErrNotFound)
	}
	rec, err := r.svc.Get(req.Context(), middleware.GetUserID(req.Context()), domain.RecordID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(rec)
}

// DELETE /v1/analyses/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%s: %w", err, domain.ErrNotFound)
	}
	if err := r.svc.Delete(req.Context(), middleware.GetUserID(req.Context()), domain.RecordID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/trial
func (r *Router) handleTrialStatus(w http.ResponseWriter, req *http.Request) error {
	status, err := r.gate.Status(req.Context(), middleware.GetInstallID(req.Context()))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(status)
}

// POST /v1/trial/reset
// Called once right after a successful login so the installation gets a
// clean counter.
func (r *Router) handleTrialReset(w http.ResponseWriter, req *http.Request) error {
	if err := r.gate.Reset(req.Context(), middleware.GetInstallID(req.Context())); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
