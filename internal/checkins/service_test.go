package checkins

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

// fakeStore mirrors the pgx repository's locking with one mutex.
type fakeStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*models.Event
	regs     map[uuid.UUID]*models.Registration
	checkIns map[uuid.UUID][]models.CheckIn
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   make(map[uuid.UUID]*models.Event),
		regs:     make(map[uuid.UUID]*models.Registration),
		checkIns: make(map[uuid.UUID][]models.CheckIn),
	}
}

func (f *fakeStore) addEvent(e *models.Event) *models.Event {
	e.ID = uuid.New()
	f.events[e.ID] = e
	return e
}

func (f *fakeStore) addRegistration(eventID, userID uuid.UUID, status models.RegistrationStatus) *models.Registration {
	reg := &models.Registration{
		ID:      uuid.New(),
		EventID: eventID,
		UserID:  userID,
		Status:  status,
	}
	f.regs[reg.ID] = reg
	return reg
}

func (f *fakeStore) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeStore) GetRegistration(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[id]
	if !ok {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (f *fakeStore) AppendCheckIn(_ context.Context, regID uuid.UUID, method models.CheckInMethod, note string, quota int) (*models.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[regID]
	if !ok {
		return nil, ErrNotAdmitted
	}
	if !reg.Status.Admitted() {
		return nil, ErrNotAdmitted
	}
	if reg.CheckInCount >= quota {
		return nil, ErrQuotaReached
	}
	ci := models.CheckIn{
		ID:             uuid.New(),
		RegistrationID: regID,
		Method:         method,
		Note:           note,
		CheckedInAt:    time.Now(),
	}
	f.checkIns[regID] = append(f.checkIns[regID], ci)
	reg.CheckInCount++
	return &ci, nil
}

func (f *fakeStore) ListByRegistration(_ context.Context, regID uuid.UUID) ([]models.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CheckIn(nil), f.checkIns[regID]...), nil
}

// recordingBroadcaster captures broadcast calls.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls int
}

func (b *recordingBroadcaster) CheckInRecorded(uuid.UUID, *models.Registration, *models.CheckIn) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
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

func setup(allowed int) (*fakeStore, *models.Event, uuid.UUID) {
	store := newFakeStore()
	organizer := uuid.New()
	e := store.addEvent(&models.Event{
		OrganizerID:     organizer,
		Title:           "Workshop",
		AllowedCheckIns: allowed,
		Status:          models.EventInProgress,
		StartsAt:        time.Now(),
		EndsAt:          time.Now().Add(2 * time.Hour),
	})
	return store, e, organizer
}

func TestRecordManual(t *testing.T) {
	store, e, organizer := setup(2)
	user := uuid.New()
	reg := store.addRegistration(e.ID, user, models.RegistrationApproved)
	broadcast := &recordingBroadcaster{}
	svc := NewService(store, broadcast)

	t.Run("participant checks in", func(t *testing.T) {
		ci, err := svc.Record(context.Background(), reg.ID, user, "")
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if ci.Method != models.CheckInManual {
			t.Fatalf("method = %s, want MANUAL", ci.Method)
		}
	})

	t.Run("organizer checks in with note", func(t *testing.T) {
		ci, err := svc.Record(context.Background(), reg.ID, organizer, "front desk")
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if ci.Note != "front desk" {
			t.Fatalf("note = %q", ci.Note)
		}
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		_, err := svc.Record(context.Background(), reg.ID, uuid.New(), "")
		wantKind(t, err, apperr.KindForbidden)
	})

	if broadcast.calls != 2 {
		t.Fatalf("broadcast calls = %d, want 2", broadcast.calls)
	}
}

func TestRecordQuota(t *testing.T) {
	store, e, _ := setup(1)
	user := uuid.New()
	reg := store.addRegistration(e.ID, user, models.RegistrationConfirmed)
	svc := NewService(store, nil)

	if _, err := svc.Record(context.Background(), reg.ID, user, ""); err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	_, err := svc.Record(context.Background(), reg.ID, user, "")
	wantKind(t, err, apperr.KindCapacityExceeded)
}

func TestRecordQuotaConcurrent(t *testing.T) {
	store, e, _ := setup(3)
	user := uuid.New()
	reg := store.addRegistration(e.ID, user, models.RegistrationApproved)
	svc := NewService(store, nil)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Record(context.Background(), reg.ID, user, "")
		}(i)
	}
	wg.Wait()

	recorded := 0
	for _, err := range errs {
		if err == nil {
			recorded++
		} else if !apperr.Is(err, apperr.KindCapacityExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if recorded != 3 {
		t.Fatalf("recorded %d check-ins, want exactly 3", recorded)
	}
	list, _ := store.ListByRegistration(context.Background(), reg.ID)
	if len(list) != 3 {
		t.Fatalf("stored %d check-ins, want 3", len(list))
	}
}

func TestRecordRequiresAdmission(t *testing.T) {
	for _, status := range []models.RegistrationStatus{
		models.RegistrationPending,
		models.RegistrationAwaitingPayment,
		models.RegistrationRejected,
		models.RegistrationCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			store, e, _ := setup(1)
			user := uuid.New()
			reg := store.addRegistration(e.ID, user, status)
			svc := NewService(store, nil)

			_, err := svc.Record(context.Background(), reg.ID, user, "")
			wantKind(t, err, apperr.KindInvalidState)
		})
	}
}

func TestRecordQR(t *testing.T) {
	store, e, organizer := setup(1)
	user := uuid.New()
	reg := store.addRegistration(e.ID, user, models.RegistrationApproved)
	svc := NewService(store, nil)

	data, err := EncodePayload(QRPayload{
		RegistrationID: reg.ID,
		EventID:        e.ID,
		UserID:         user,
		IssuedAt:       time.Now(),
	})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	t.Run("participant cannot scan", func(t *testing.T) {
		_, err := svc.RecordQR(context.Background(), data, user)
		wantKind(t, err, apperr.KindForbidden)
	})

	t.Run("payload mismatch rejected", func(t *testing.T) {
		bad, _ := EncodePayload(QRPayload{
			RegistrationID: reg.ID,
			EventID:        e.ID,
			UserID:         uuid.New(), // wrong holder
			IssuedAt:       time.Now(),
		})
		_, err := svc.RecordQR(context.Background(), bad, organizer)
		wantKind(t, err, apperr.KindValidation)
	})

	t.Run("organizer scan records QR method", func(t *testing.T) {
		ci, err := svc.RecordQR(context.Background(), data, organizer)
		if err != nil {
			t.Fatalf("RecordQR: %v", err)
		}
		if ci.Method != models.CheckInQR {
			t.Fatalf("method = %s, want QR", ci.Method)
		}
	})
}

func TestCard(t *testing.T) {
	store, e, _ := setup(1)
	user := uuid.New()
	reg := store.addRegistration(e.ID, user, models.RegistrationApproved)
	svc := NewService(store, nil)

	card, err := svc.Card(context.Background(), reg.ID, user)
	if err != nil {
		t.Fatalf("Card: %v", err)
	}
	payload, err := DecodePayload(card.QRData)
	if err != nil {
		t.Fatalf("card QR does not decode: %v", err)
	}
	if payload.RegistrationID != reg.ID || payload.EventID != e.ID || payload.UserID != user {
		t.Fatal("card QR payload does not identify the registration")
	}

	t.Run("only the participant", func(t *testing.T) {
		_, err := svc.Card(context.Background(), reg.ID, uuid.New())
		wantKind(t, err, apperr.KindForbidden)
	})

	t.Run("pending registration has no card", func(t *testing.T) {
		pending := store.addRegistration(e.ID, uuid.New(), models.RegistrationPending)
		_, err := svc.Card(context.Background(), pending.ID, pending.UserID)
		wantKind(t, err, apperr.KindInvalidState)
	})
}
