package registrations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

// fakeStore is an in-memory Store with the same serialization guarantees as
// the pgx repository: one mutex plays the role of the event row lock.
type fakeStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*models.Event
	regs   map[uuid.UUID]*models.Registration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: make(map[uuid.UUID]*models.Event),
		regs:   make(map[uuid.UUID]*models.Registration),
	}
}

func (f *fakeStore) addEvent(e *models.Event) *models.Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	f.events[e.ID] = e
	return e
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

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[id]
	if !ok {
		return nil, nil
	}
	cp := *reg
	return &cp, nil
}

func (f *fakeStore) GetByEventAndUser(_ context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
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

func (f *fakeStore) consumingLocked(eventID uuid.UUID) int {
	n := 0
	for _, reg := range f.regs {
		if reg.EventID == eventID && reg.Status.CapacityConsuming() {
			n++
		}
	}
	return n
}

func (f *fakeStore) insertLocked(reg *models.Registration) error {
	for _, existing := range f.regs {
		if existing.EventID == reg.EventID && existing.UserID == reg.UserID {
			return ErrDuplicate
		}
	}
	reg.ID = uuid.New()
	cp := *reg
	f.regs[reg.ID] = &cp
	return nil
}

func (f *fakeStore) Insert(_ context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(reg)
}

func (f *fakeStore) InsertAdmitted(_ context.Context, reg *models.Registration, limit *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit != nil && f.consumingLocked(reg.EventID) >= *limit {
		return ErrCapacityFull
	}
	return f.insertLocked(reg)
}

func (f *fakeStore) ApproveWithinCapacity(_ context.Context, regID, eventID uuid.UUID, limit *int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit != nil && f.consumingLocked(eventID) >= *limit {
		return false, ErrCapacityFull
	}
	reg, ok := f.regs[regID]
	if !ok || reg.Status != models.RegistrationPending {
		return false, nil
	}
	reg.Status = models.RegistrationApproved
	return true, nil
}

func (f *fakeStore) Transition(_ context.Context, regID uuid.UUID, from, to models.RegistrationStatus, stampPayment bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[regID]
	if !ok || reg.Status != from {
		return false, nil
	}
	reg.Status = to
	if stampPayment {
		now := time.Now()
		reg.PaymentConfirmed = &now
	}
	return true, nil
}

func (f *fakeStore) CancelFromAny(_ context.Context, regID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[regID]
	if !ok || reg.Status == models.RegistrationCancelled {
		return false, nil
	}
	reg.Status = models.RegistrationCancelled
	return true, nil
}

func (f *fakeStore) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Registration
	for _, reg := range f.regs {
		if reg.EventID == eventID {
			list = append(list, *reg)
		}
	}
	return list, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Registration
	for _, reg := range f.regs {
		if reg.UserID == userID {
			list = append(list, *reg)
		}
	}
	return list, nil
}

func openEvent(organizerID uuid.UUID) *models.Event {
	return &models.Event{
		OrganizerID: organizerID,
		Title:       "Go Conference",
		Kind:        models.EventFree,
		Status:      models.EventRegistrationsOpen,
	}
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

func TestCreateInitialStatus(t *testing.T) {
	organizer := uuid.New()
	tests := []struct {
		name  string
		setup func(e *models.Event)
		want  models.RegistrationStatus
	}{
		{"free open event auto-approves", func(e *models.Event) {}, models.RegistrationApproved},
		{"approval required starts pending", func(e *models.Event) {
			e.RequiresApproval = true
		}, models.RegistrationPending},
		{"paid event awaits payment", func(e *models.Event) {
			e.Kind = models.EventPaid
			e.Price = 50
		}, models.RegistrationAwaitingPayment},
		{"approval wins over payment", func(e *models.Event) {
			e.Kind = models.EventPaid
			e.Price = 50
			e.RequiresApproval = true
		}, models.RegistrationPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			e := openEvent(organizer)
			tt.setup(e)
			store.addEvent(e)
			svc := NewService(store, nil)

			reg, err := svc.Create(context.Background(), e.ID, uuid.New())
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if reg.Status != tt.want {
				t.Fatalf("initial status = %s, want %s", reg.Status, tt.want)
			}
		})
	}
}

func TestCreateRejectsClosedEvent(t *testing.T) {
	store := newFakeStore()
	e := openEvent(uuid.New())
	e.Status = models.EventDraft
	store.addEvent(e)
	svc := NewService(store, nil)

	_, err := svc.Create(context.Background(), e.ID, uuid.New())
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCreateRegistrationWindow(t *testing.T) {
	organizer := uuid.New()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	t.Run("before window opens", func(t *testing.T) {
		store := newFakeStore()
		e := openEvent(organizer)
		e.RegistrationOpens = &future
		store.addEvent(e)
		svc := NewService(store, nil)

		_, err := svc.Create(context.Background(), e.ID, uuid.New())
		wantKind(t, err, apperr.KindInvalidState)
	})

	t.Run("after window closes", func(t *testing.T) {
		store := newFakeStore()
		e := openEvent(organizer)
		e.RegistrationCloses = &past
		store.addEvent(e)
		svc := NewService(store, nil)

		_, err := svc.Create(context.Background(), e.ID, uuid.New())
		wantKind(t, err, apperr.KindInvalidState)
	})
}

func TestCreateDuplicateAndCancelledBlock(t *testing.T) {
	store := newFakeStore()
	e := store.addEvent(openEvent(uuid.New()))
	svc := NewService(store, nil)
	user := uuid.New()

	reg, err := svc.Create(context.Background(), e.ID, user)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Create(context.Background(), e.ID, user)
	wantKind(t, err, apperr.KindAlreadyExists)

	if _, err := svc.Cancel(context.Background(), reg.ID, user); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Cancellation is terminal for the pair.
	_, err = svc.Create(context.Background(), e.ID, user)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCreateCapacityLimit(t *testing.T) {
	store := newFakeStore()
	limit := 2
	e := openEvent(uuid.New())
	e.MaxRegistrations = &limit
	store.addEvent(e)
	svc := NewService(store, nil)

	for i := 0; i < limit; i++ {
		if _, err := svc.Create(context.Background(), e.ID, uuid.New()); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	_, err := svc.Create(context.Background(), e.ID, uuid.New())
	wantKind(t, err, apperr.KindCapacityExceeded)
}

func TestCreateConcurrentNeverOverAdmits(t *testing.T) {
	store := newFakeStore()
	limit := 5
	e := openEvent(uuid.New())
	e.MaxRegistrations = &limit
	store.addEvent(e)
	svc := NewService(store, nil)

	const attempts = 50
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), e.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else if !apperr.Is(err, apperr.KindCapacityExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted != limit {
		t.Fatalf("admitted %d registrations, want exactly %d", admitted, limit)
	}
}

func TestApprove(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := openEvent(organizer)
	e.RequiresApproval = true
	store.addEvent(e)
	svc := NewService(store, nil)
	user := uuid.New()

	reg, err := svc.Create(context.Background(), e.ID, user)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Run("non-organizer forbidden", func(t *testing.T) {
		_, err := svc.Approve(context.Background(), reg.ID, uuid.New())
		wantKind(t, err, apperr.KindForbidden)
	})

	t.Run("organizer approves pending", func(t *testing.T) {
		out, err := svc.Approve(context.Background(), reg.ID, organizer)
		if err != nil {
			t.Fatalf("Approve: %v", err)
		}
		if out.Status != models.RegistrationApproved {
			t.Fatalf("status = %s, want APPROVED", out.Status)
		}
	})

	t.Run("second approve reports already approved", func(t *testing.T) {
		_, err := svc.Approve(context.Background(), reg.ID, organizer)
		wantKind(t, err, apperr.KindInvalidState)
	})
}

func TestApproveRespectsCapacity(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	limit := 1
	e := openEvent(organizer)
	e.RequiresApproval = true
	e.MaxRegistrations = &limit
	store.addEvent(e)
	svc := NewService(store, nil)

	first, _ := svc.Create(context.Background(), e.ID, uuid.New())
	second, _ := svc.Create(context.Background(), e.ID, uuid.New())

	if _, err := svc.Approve(context.Background(), first.ID, organizer); err != nil {
		t.Fatalf("Approve first: %v", err)
	}
	_, err := svc.Approve(context.Background(), second.ID, organizer)
	wantKind(t, err, apperr.KindCapacityExceeded)

	// The losing registration stays PENDING and can win a freed slot.
	if _, err := svc.Cancel(context.Background(), first.ID, organizer); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := svc.Approve(context.Background(), second.ID, organizer); err != nil {
		t.Fatalf("Approve after slot freed: %v", err)
	}
}

func TestReject(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := openEvent(organizer)
	e.RequiresApproval = true
	store.addEvent(e)
	svc := NewService(store, nil)

	reg, _ := svc.Create(context.Background(), e.ID, uuid.New())

	out, err := svc.Reject(context.Background(), reg.ID, organizer)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if out.Status != models.RegistrationRejected {
		t.Fatalf("status = %s, want REJECTED", out.Status)
	}

	_, err = svc.Reject(context.Background(), reg.ID, organizer)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestRejectApprovedNotAllowed(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := store.addEvent(openEvent(organizer))
	svc := NewService(store, nil)

	reg, _ := svc.Create(context.Background(), e.ID, uuid.New()) // auto-approved
	_, err := svc.Reject(context.Background(), reg.ID, organizer)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestConfirmPayment(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := openEvent(organizer)
	e.Kind = models.EventPaid
	e.Price = 25
	store.addEvent(e)
	svc := NewService(store, nil)

	reg, _ := svc.Create(context.Background(), e.ID, uuid.New())
	if reg.Status != models.RegistrationAwaitingPayment {
		t.Fatalf("status = %s, want AWAITING_PAYMENT", reg.Status)
	}

	out, err := svc.ConfirmPayment(context.Background(), reg.ID, organizer)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if out.Status != models.RegistrationConfirmed {
		t.Fatalf("status = %s, want CONFIRMED", out.Status)
	}
	if out.PaymentConfirmed == nil {
		t.Fatal("payment timestamp not stamped")
	}

	_, err = svc.ConfirmPayment(context.Background(), reg.ID, organizer)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestConfirmPaymentWrongState(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := openEvent(organizer)
	e.RequiresApproval = true
	store.addEvent(e)
	svc := NewService(store, nil)

	reg, _ := svc.Create(context.Background(), e.ID, uuid.New()) // PENDING
	_, err := svc.ConfirmPayment(context.Background(), reg.ID, organizer)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCancelPermissions(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := store.addEvent(openEvent(organizer))
	svc := NewService(store, nil)
	user := uuid.New()

	reg, _ := svc.Create(context.Background(), e.ID, user)

	_, err := svc.Cancel(context.Background(), reg.ID, uuid.New())
	wantKind(t, err, apperr.KindForbidden)

	if _, err := svc.Cancel(context.Background(), reg.ID, organizer); err != nil {
		t.Fatalf("organizer cancel: %v", err)
	}
	_, err = svc.Cancel(context.Background(), reg.ID, user)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCancelFreesCapacitySlot(t *testing.T) {
	store := newFakeStore()
	limit := 1
	e := openEvent(uuid.New())
	e.MaxRegistrations = &limit
	store.addEvent(e)
	svc := NewService(store, nil)
	user := uuid.New()

	reg, _ := svc.Create(context.Background(), e.ID, user)
	if _, err := svc.Cancel(context.Background(), reg.ID, user); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// The freed slot admits a different participant.
	if _, err := svc.Create(context.Background(), e.ID, uuid.New()); err != nil {
		t.Fatalf("Create after cancel: %v", err)
	}
}

func TestGetVisibility(t *testing.T) {
	organizer := uuid.New()
	store := newFakeStore()
	e := store.addEvent(openEvent(organizer))
	svc := NewService(store, nil)
	user := uuid.New()

	reg, _ := svc.Create(context.Background(), e.ID, user)

	if _, err := svc.Get(context.Background(), reg.ID, user); err != nil {
		t.Fatalf("participant get: %v", err)
	}
	if _, err := svc.Get(context.Background(), reg.ID, organizer); err != nil {
		t.Fatalf("organizer get: %v", err)
	}
	_, err := svc.Get(context.Background(), reg.ID, uuid.New())
	wantKind(t, err, apperr.KindForbidden)
}
