package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mediscan/mediscan-api/internal/application"
	"github.com/mediscan/mediscan-api/internal/application/trial"
	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
	domfaults "github.com/mediscan/mediscan-api/internal/domain/faults"
)

// Service implements use-cases for medication analysis.
// Pipeline per request: gate → inference (with retry) → parse → normalize →
// conditional persistence. Persistence failures never abort a produced
// analysis; they surface as warnings on the result.
type Service struct {
	Vision domain.Vision
	Repo   domain.Repository
	Images domain.ImageStore
	Faults domfaults.Repository // optional, best-effort failure log
	Gate   *trial.Gate
	Clock  application.Clock
	Retry  RetryPolicy

	// Sleep is swappable in tests; nil waits on a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Command untuk analyze
type AnalyzeCommand struct {
	Image     domain.SourceImage
	Filename  string
	OwnerID   string // empty for anonymous callers
	InstallID string // trial gating key for anonymous callers
}

// AnalyzeResult carries the normalized analysis plus non-fatal flags.
type AnalyzeResult struct {
	Analysis    domain.MedicationAnalysis `json:"analysis"`
	RecordID    domain.RecordID           `json:"record_id,omitempty"`
	Saved       bool                      `json:"saved"`
	SaveWarning string                    `json:"save_warning,omitempty"`
	Degraded    bool                      `json:"degraded"`

	// TrialRemaining is -1 for authenticated callers.
	TrialRemaining int `json:"trial_remaining"`
}

// Analyze runs the full pipeline for one image.
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (*AnalyzeResult, error) {
	// Acquisition errors must surface before any network call.
	if len(cmd.Image.Data) == 0 || !strings.HasPrefix(cmd.Image.MIME, "image/") {
		return nil, domain.ErrInvalidImage
	}
	if len(cmd.Image.Data) > domain.MaxImageBytes {
		return nil, domain.ErrImageTooLarge
	}

	trialRemaining := -1
	if cmd.OwnerID == "" {
		ok, err := s.Gate.CanProceed(ctx, cmd.InstallID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrTrialExhausted
		}
		count, err := s.Gate.RecordUsage(ctx, cmd.InstallID)
		if err != nil {
			return nil, err
		}
		trialRemaining = s.Gate.Limit() - count
		if trialRemaining < 0 {
			trialRemaining = 0
		}
	}

	raw, attempts, err := s.invokeWithRetry(ctx, cmd.Image)
	if err != nil {
		ferr := &domain.FailedError{Attempts: attempts, Cause: err}
		s.recordFault(cmd.OwnerID, "", domfaults.PhaseInference, ferr.Error(), raw)
		return nil, ferr
	}

	parsed := domain.Parse(raw)
	if parsed.Degraded {
		s.recordFault(cmd.OwnerID, "", domfaults.PhaseParse, "no field extracted from model output", raw)
	}

	// Upload the source image for authenticated callers. Failure falls back
	// to an ephemeral (empty) reference and must not abort the analysis.
	imageURL := ""
	uploadWarning := ""
	if cmd.OwnerID != "" {
		url, uerr := s.Images.Upload(ctx, cmd.OwnerID, cmd.Filename, cmd.Image)
		if uerr != nil {
			uploadWarning = "l'image n'a pas pu être sauvegardée"
			s.recordFault(cmd.OwnerID, "", domfaults.PhasePersist, uerr.Error(), "")
		} else {
			imageURL = url
		}
	}

	result := &AnalyzeResult{
		Analysis:       parsed.Normalize(imageURL),
		Degraded:       parsed.Degraded || !parsed.Identified,
		TrialRemaining: trialRemaining,
		SaveWarning:    uploadWarning,
	}

	// Save the record for authenticated callers. A failed save degrades to
	// a warning, never to an error.
	if cmd.OwnerID != "" {
		now := s.Clock.Now()
		rec := &domain.AnalysisRecord{
			ID:          domain.RecordID(uuid.New().String()),
			OwnerID:     cmd.OwnerID,
			Name:        result.Analysis.Name,
			Description: result.Analysis.Description,
			ImageURL:    imageURL,
			Details:     result.Analysis.Details,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if serr := s.Repo.Save(ctx, rec); serr != nil {
			result.SaveWarning = "l'analyse n'a pas pu être sauvegardée dans votre historique"
			s.recordFault(cmd.OwnerID, string(rec.ID), domfaults.PhasePersist, serr.Error(), "")
		} else {
			result.RecordID = rec.ID
			result.Saved = true
		}
	}

	return result, nil
}

// invokeWithRetry calls the vision provider up to MaxAttempts times with a
// linearly increasing pause. Permanent failures short-circuit: retrying a
// bad API key or a safety block cannot succeed.
func (s *Service) invokeWithRetry(ctx context.Context, img domain.SourceImage) (string, int, error) {
	policy := s.Retry.orDefault()
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		raw, err := s.Vision.Identify(ctx, img)
		if err == nil && strings.TrimSpace(raw) == "" {
			err = domain.ErrEmptyResponse
		}
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err
		if permanent(err) || attempt == policy.MaxAttempts {
			return "", attempt, lastErr
		}
		if werr := s.sleep(ctx, policy.Delay(attempt)); werr != nil {
			return "", attempt, werr
		}
	}
	return "", policy.MaxAttempts, lastErr
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidAPIKey) ||
		errors.Is(err, domain.ErrSafetyBlocked) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// recordFault writes a failure entry, best effort. Uses its own context so a
// cancelled request can still be logged.
func (s *Service) recordFault(owner, analysisID, phase, message, raw string) {
	if s.Faults == nil {
		return
	}
	details := "{}"
	if raw != "" {
		if b, err := json.Marshal(map[string]string{"raw": truncate(raw, 2000)}); err == nil {
			details = string(b)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Faults.Save(ctx, &domfaults.Fault{
		OwnerID:     owner,
		AnalysisID:  analysisID,
		Phase:       phase,
		Message:     message,
		DetailsJSON: details,
		CreatedAt:   s.Clock.Now(),
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// History returns the owner's latest analyses, newest first.
func (s *Service) History(ctx context.Context, owner string, limit int) ([]*domain.AnalysisRecord, error) {
	return s.Repo.Latest(ctx, owner, limit)
}

// Get returns one analysis by id, owner-scoped.
func (s *Service) Get(ctx context.Context, owner string, id domain.RecordID) (*domain.AnalysisRecord, error) {
	return s.Repo.Get(ctx, owner, id)
}

// Delete removes one analysis by id, owner-scoped.
func (s *Service) Delete(ctx context.Context, owner string, id domain.RecordID) error {
	return s.Repo.Delete(ctx, owner, id)
}
