package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mediscan/mediscan-api/internal/application/trial"
	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
)

type visionStep struct {
	raw string
	err error
}

type fakeVision struct {
	steps []visionStep
	calls int
}

func (f *fakeVision) Identify(_ context.Context, _ domain.SourceImage) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].raw, f.steps[i].err
}

type fakeRepo struct {
	saved   []*domain.AnalysisRecord
	saveErr error
}

func (f *fakeRepo) Save(_ context.Context, rec *domain.AnalysisRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeRepo) Get(_ context.Context, owner string, id domain.RecordID) (*domain.AnalysisRecord, error) {
	for _, rec := range f.saved {
		if rec.OwnerID == owner && rec.ID == id {
			return rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRepo) Latest(_ context.Context, owner string, _ int) ([]*domain.AnalysisRecord, error) {
	var out []*domain.AnalysisRecord
	for _, rec := range f.saved {
		if rec.OwnerID == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) Delete(_ context.Context, owner string, id domain.RecordID) error {
	for i, rec := range f.saved {
		if rec.OwnerID == owner && rec.ID == id {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeImageStore struct {
	uploads int
	err     error
}

func (f *fakeImageStore) Upload(_ context.Context, owner, filename string, _ domain.SourceImage) (string, error) {
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example.com/" + owner + "/" + filename, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const validJSON = `{"nom": "Doliprane", "description": "Antalgique", "dosage": "500mg"}`

func newService(vision *fakeVision, repo *fakeRepo, store *fakeImageStore) (*Service, *[]time.Duration) {
	delays := &[]time.Duration{}
	svc := &Service{
		Vision: vision,
		Repo:   repo,
		Images: store,
		Gate:   trial.New(trial.NewMemoryStore(), 3),
		Clock:  fixedClock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)},
		Sleep: func(_ context.Context, d time.Duration) error {
			*delays = append(*delays, d)
			return nil
		},
	}
	return svc, delays
}

func validImage() domain.SourceImage {
	return domain.SourceImage{MIME: "image/jpeg", Data: []byte("jpegdata")}
}

func TestAnalyze_OversizedImageNeverReachesProvider(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	svc, _ := newService(vision, &fakeRepo{}, &fakeImageStore{})

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{
		Image:     domain.SourceImage{MIME: "image/jpeg", Data: make([]byte, domain.MaxImageBytes+1)},
		InstallID: "install-1",
	})
	if !errors.Is(err, domain.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if vision.calls != 0 {
		t.Fatalf("expected no provider calls, got %d", vision.calls)
	}

	// The failed request must not consume a trial credit either.
	st, _ := svc.Gate.Status(context.Background(), "install-1")
	if st.Used != 0 {
		t.Fatalf("expected 0 trial uses, got %d", st.Used)
	}
}

func TestAnalyze_InvalidMIMERejected(t *testing.T) {
	svc, _ := newService(&fakeVision{steps: []visionStep{{raw: validJSON}}}, &fakeRepo{}, &fakeImageStore{})

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{
		Image:     domain.SourceImage{MIME: "application/pdf", Data: []byte("%PDF-")},
		InstallID: "install-1",
	})
	if !errors.Is(err, domain.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestAnalyze_RetriesWithLinearBackoff(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{
		{err: errors.New("transient 500")},
		{err: errors.New("transient 503")},
		{raw: validJSON},
	}}
	svc, delays := newService(vision, &fakeRepo{}, &fakeImageStore{})

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vision.calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", vision.calls)
	}
	if len(*delays) != 2 || (*delays)[0] != time.Second || (*delays)[1] != 2*time.Second {
		t.Fatalf("expected delays [1s 2s], got %v", *delays)
	}
	if res.Analysis.Name != "Doliprane" {
		t.Fatalf("expected name %q, got %q", "Doliprane", res.Analysis.Name)
	}
}

func TestAnalyze_FailsAfterRetriesExhausted(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{err: errors.New("transient")}}}
	svc, delays := newService(vision, &fakeRepo{}, &fakeImageStore{})

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})

	var ferr *domain.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FailedError, got %v", err)
	}
	if ferr.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", ferr.Attempts)
	}
	if vision.calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", vision.calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 pauses, got %d", len(*delays))
	}
}

func TestAnalyze_InvalidKeyShortCircuitsRetry(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{err: domain.ErrInvalidAPIKey}}}
	svc, delays := newService(vision, &fakeRepo{}, &fakeImageStore{})

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})

	var ferr *domain.FailedError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FailedError, got %v", err)
	}
	if ferr.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", ferr.Attempts)
	}
	if !errors.Is(err, domain.ErrInvalidAPIKey) {
		t.Fatalf("expected wrapped ErrInvalidAPIKey, got %v", err)
	}
	if len(*delays) != 0 {
		t.Fatalf("expected no pauses, got %v", *delays)
	}
}

func TestAnalyze_SafetyBlockShortCircuitsRetry(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{err: domain.ErrSafetyBlocked}}}
	svc, _ := newService(vision, &fakeRepo{}, &fakeImageStore{})

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
	if vision.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", vision.calls)
	}
	if !errors.Is(err, domain.ErrSafetyBlocked) {
		t.Fatalf("expected wrapped ErrSafetyBlocked, got %v", err)
	}
}

func TestAnalyze_EmptyResponseIsRetried(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{
		{raw: "   "},
		{raw: validJSON},
	}}
	svc, _ := newService(vision, &fakeRepo{}, &fakeImageStore{})

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vision.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", vision.calls)
	}
	if res.Analysis.Name != "Doliprane" {
		t.Fatalf("expected name %q, got %q", "Doliprane", res.Analysis.Name)
	}
}

func TestAnalyze_TrialGateBlocksFourthAnonymousRequest(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	svc, _ := newService(vision, &fakeRepo{}, &fakeImageStore{})

	for i, wantRemaining := range []int{2, 1, 0} {
		res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if res.TrialRemaining != wantRemaining {
			t.Fatalf("request %d: expected %d remaining, got %d", i+1, wantRemaining, res.TrialRemaining)
		}
	}

	_, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
	if !errors.Is(err, domain.ErrTrialExhausted) {
		t.Fatalf("expected ErrTrialExhausted, got %v", err)
	}

	// Another installation is unaffected.
	if _, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-2"}); err != nil {
		t.Fatalf("unexpected error for fresh installation: %v", err)
	}
}

func TestAnalyze_AuthenticatedBypassesGateAndPersists(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	repo := &fakeRepo{}
	store := &fakeImageStore{}
	svc, _ := newService(vision, repo, store)

	var res *AnalyzeResult
	var err error
	for i := 0; i < 5; i++ {
		res, err = svc.Analyze(context.Background(), AnalyzeCommand{
			Image:    validImage(),
			Filename: "photo.jpg",
			OwnerID:  "user-1",
		})
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	if res.TrialRemaining != -1 {
		t.Fatalf("expected trial remaining -1 for authenticated caller, got %d", res.TrialRemaining)
	}
	if !res.Saved || res.RecordID == "" {
		t.Fatalf("expected saved record, got saved=%v id=%q", res.Saved, res.RecordID)
	}
	if store.uploads != 5 {
		t.Fatalf("expected 5 uploads, got %d", store.uploads)
	}
	if len(repo.saved) != 5 {
		t.Fatalf("expected 5 saved records, got %d", len(repo.saved))
	}
	if repo.saved[0].ImageURL == "" {
		t.Fatal("expected saved record to carry the uploaded image url")
	}
}

func TestAnalyze_AnonymousResultIsNotPersisted(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	repo := &fakeRepo{}
	store := &fakeImageStore{}
	svc, _ := newService(vision, repo, store)

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Saved || res.RecordID != "" {
		t.Fatalf("expected unsaved result, got saved=%v id=%q", res.Saved, res.RecordID)
	}
	if store.uploads != 0 {
		t.Fatalf("expected no uploads for anonymous caller, got %d", store.uploads)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("expected no saved records, got %d", len(repo.saved))
	}
}

func TestAnalyze_SaveFailureDegradesToWarning(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	repo := &fakeRepo{saveErr: errors.New("connection refused")}
	svc, _ := newService(vision, repo, &fakeImageStore{})

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("expected analysis to survive the save failure, got %v", err)
	}
	if res.Saved {
		t.Fatal("expected saved=false")
	}
	if res.SaveWarning == "" {
		t.Fatal("expected a save warning")
	}
	if res.Analysis.Name != "Doliprane" {
		t.Fatalf("expected analysis to be returned, got name %q", res.Analysis.Name)
	}
}

func TestAnalyze_UploadFailureDegradesToWarning(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	repo := &fakeRepo{}
	store := &fakeImageStore{err: errors.New("bucket unavailable")}
	svc, _ := newService(vision, repo, store)

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("expected analysis to survive the upload failure, got %v", err)
	}
	if res.SaveWarning == "" {
		t.Fatal("expected a warning")
	}
	if res.Analysis.ImageURL != "" {
		t.Fatalf("expected empty image url, got %q", res.Analysis.ImageURL)
	}
	// The record itself still lands, without an image reference.
	if !res.Saved {
		t.Fatal("expected record to be saved")
	}
}

func TestAnalyze_UnparseableOutputIsDegradedNotFailed(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: "je ne sais pas"}}}
	svc, _ := newService(vision, &fakeRepo{}, &fakeImageStore{})

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), InstallID: "install-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.Analysis.Name != domain.UnidentifiedName {
		t.Fatalf("expected name %q, got %q", domain.UnidentifiedName, res.Analysis.Name)
	}
	if res.Analysis.Details.Manufacturer != domain.NotAvailable {
		t.Fatalf("expected manufacturer %q, got %q", domain.NotAvailable, res.Analysis.Details.Manufacturer)
	}
}

func TestHistoryGetDelete_OwnerScoped(t *testing.T) {
	vision := &fakeVision{steps: []visionStep{{raw: validJSON}}}
	repo := &fakeRepo{}
	svc, _ := newService(vision, repo, &fakeImageStore{})

	res, err := svc.Analyze(context.Background(), AnalyzeCommand{Image: validImage(), OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Get(context.Background(), "user-2", res.RecordID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	rec, err := svc.Get(context.Background(), "user-1", res.RecordID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Name != "Doliprane" {
		t.Fatalf("expected name %q, got %q", "Doliprane", rec.Name)
	}

	list, err := svc.History(context.Background(), "user-1", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 record, got %d (err %v)", len(list), err)
	}

	if err := svc.Delete(context.Background(), "user-2", res.RecordID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting as foreign owner, got %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", res.RecordID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-1", res.RecordID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
