package certificates

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	users  map[uuid.UUID]*models.User
	regs   map[uuid.UUID]*models.Registration
	certs  map[uuid.UUID]*models.Certificate
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: make(map[uuid.UUID]*models.Event),
		users:  make(map[uuid.UUID]*models.User),
		regs:   make(map[uuid.UUID]*models.Registration),
		certs:  make(map[uuid.UUID]*models.Certificate),
	}
}

func (f *fakeStore) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetRegistration(_ context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.regs {
		if reg.EventID == eventID && reg.UserID == userID {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByEventAndUser(_ context.Context, eventID, userID uuid.UUID) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findLocked(eventID, userID), nil
}

func (f *fakeStore) findLocked(eventID, userID uuid.UUID) *models.Certificate {
	for _, cert := range f.certs {
		if cert.EventID == eventID && cert.UserID == userID {
			cp := *cert
			return &cp
		}
	}
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cert, ok := f.certs[id]; ok {
		cp := *cert
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetByCode(_ context.Context, code string) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cert := range f.certs {
		if cert.VerificationCode == code {
			cp := *cert
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(_ context.Context, cert *models.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findLocked(cert.EventID, cert.UserID) != nil {
		return ErrDuplicate
	}
	cp := *cert
	f.certs[cert.ID] = &cp
	for _, reg := range f.regs {
		if reg.EventID == cert.EventID && reg.UserID == cert.UserID {
			reg.CertificateIssued = true
		}
	}
	return nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Certificate
	for _, cert := range f.certs {
		if cert.UserID == userID {
			list = append(list, *cert)
		}
	}
	return list, nil
}

// fakeUploader captures uploads in memory.
type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) UploadCertificate(_ context.Context, key string, pdf []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = pdf
	return key, nil
}

func (u *fakeUploader) CertificateDownloadURL(_ context.Context, key string) (string, error) {
	return "https://example.test/" + key, nil
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %v, got nil", kind)
	}
	if !apperr.Is(err, kind) {
		t.Fatalf("expected error kind %v, got %v (%v)", kind, apperr.KindOf(err), err)
	}
}

type fixture struct {
	store    *fakeStore
	uploader *fakeUploader
	svc      *Service
	event    *models.Event
	user     *models.User
	reg      *models.Registration
}

func newFixture(status models.RegistrationStatus, checkIns int) *fixture {
	store := newFakeStore()
	uploader := newFakeUploader()
	hours := 8
	event := &models.Event{
		ID:            uuid.New(),
		OrganizerID:   uuid.New(),
		Title:         "Go Workshop",
		StartsAt:      time.Now().Add(-24 * time.Hour),
		EndsAt:        time.Now().Add(-20 * time.Hour),
		WorkloadHours: &hours,
		Status:        models.EventFinished,
	}
	store.events[event.ID] = event
	user := &models.User{ID: uuid.New(), Email: "ana@example.com", FullName: "Ana Souza"}
	store.users[user.ID] = user
	reg := &models.Registration{
		ID:           uuid.New(),
		EventID:      event.ID,
		UserID:       user.ID,
		Status:       status,
		CheckInCount: checkIns,
	}
	store.regs[reg.ID] = reg
	return &fixture{
		store:    store,
		uploader: uploader,
		svc:      NewService(store, NewPDFRenderer(), uploader, nil),
		event:    event,
		user:     user,
		reg:      reg,
	}
}

func TestIssue(t *testing.T) {
	fx := newFixture(models.RegistrationConfirmed, 1)

	cert, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(cert.VerificationCode, "CERT-") {
		t.Fatalf("verification code %q has no CERT- prefix", cert.VerificationCode)
	}
	if cert.PDFKey == "" {
		t.Fatal("certificate has no artifact key")
	}
	if _, ok := fx.uploader.objects[cert.PDFKey]; !ok {
		t.Fatal("artifact was not uploaded")
	}
	reg, _ := fx.store.GetRegistration(context.Background(), fx.event.ID, fx.user.ID)
	if !reg.CertificateIssued {
		t.Fatal("registration flag not flipped")
	}
}

func TestIssueIdempotent(t *testing.T) {
	fx := newFixture(models.RegistrationApproved, 2)

	first, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if first.ID != second.ID || first.VerificationCode != second.VerificationCode {
		t.Fatal("re-issuing returned a different certificate")
	}
}

func TestIssueConcurrentConvergesOnOne(t *testing.T) {
	fx := newFixture(models.RegistrationApproved, 1)

	const attempts = 10
	var wg sync.WaitGroup
	certs := make([]*models.Certificate, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cert, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
			if err != nil {
				t.Errorf("Issue: %v", err)
				return
			}
			certs[i] = cert
		}(i)
	}
	wg.Wait()

	for _, cert := range certs[1:] {
		if cert == nil || certs[0] == nil {
			t.Fatal("missing certificate")
		}
		if cert.ID != certs[0].ID {
			t.Fatal("concurrent issues produced different certificates")
		}
	}
}

func TestIssueGuards(t *testing.T) {
	t.Run("no registration", func(t *testing.T) {
		fx := newFixture(models.RegistrationApproved, 1)
		_, err := fx.svc.Issue(context.Background(), fx.event.ID, uuid.New())
		wantKind(t, err, apperr.KindNotFound)
	})

	t.Run("not admitted", func(t *testing.T) {
		fx := newFixture(models.RegistrationPending, 1)
		_, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
		wantKind(t, err, apperr.KindInvalidState)
	})

	t.Run("no check-ins", func(t *testing.T) {
		fx := newFixture(models.RegistrationConfirmed, 0)
		_, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
		wantKind(t, err, apperr.KindInvalidState)
	})

	t.Run("unknown event", func(t *testing.T) {
		fx := newFixture(models.RegistrationConfirmed, 1)
		_, err := fx.svc.Issue(context.Background(), uuid.New(), fx.user.ID)
		wantKind(t, err, apperr.KindNotFound)
	})
}

func TestDownloadURL(t *testing.T) {
	fx := newFixture(models.RegistrationConfirmed, 1)
	cert, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	url, err := fx.svc.DownloadURL(context.Background(), cert.ID, fx.user.ID)
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if !strings.Contains(url, cert.PDFKey) {
		t.Fatalf("url %q does not reference the artifact", url)
	}

	_, err = fx.svc.DownloadURL(context.Background(), cert.ID, uuid.New())
	wantKind(t, err, apperr.KindForbidden)
}

func TestValidate(t *testing.T) {
	fx := newFixture(models.RegistrationConfirmed, 1)
	cert, err := fx.svc.Issue(context.Background(), fx.event.ID, fx.user.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	v, err := fx.svc.Validate(context.Background(), cert.VerificationCode)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.EventTitle != fx.event.Title || v.ParticipantName != fx.user.FullName {
		t.Fatalf("validation view incomplete: %+v", v)
	}

	_, err = fx.svc.Validate(context.Background(), "CERT-0-nope")
	wantKind(t, err, apperr.KindNotFound)
}

func TestRenderProducesPDF(t *testing.T) {
	hours := 4
	pdf, err := NewPDFRenderer().Render(RenderData{
		ParticipantName:  "Ana Souza",
		EventTitle:       "Go Workshop",
		EventStarts:      time.Now().Add(-24 * time.Hour),
		EventEnds:        time.Now(),
		WorkloadHours:    &hours,
		VerificationCode: "CERT-1-abc123",
		IssuedAt:         time.Now(),
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(pdf) < 5 || string(pdf[:5]) != "%PDF-" {
		t.Fatal("output is not a PDF")
	}
}
