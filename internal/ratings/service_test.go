package ratings

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/gatherly/backend/internal/models"
	"github.com/gatherly/backend/pkg/apperr"
)

type fakeStore struct {
	mu      sync.Mutex
	events  map[uuid.UUID]*models.Event
	regs    map[uuid.UUID]*models.Registration
	ratings []models.Rating
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: make(map[uuid.UUID]*models.Event),
		regs:   make(map[uuid.UUID]*models.Registration),
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

func (f *fakeStore) GetByEventAndUser(_ context.Context, eventID, userID uuid.UUID) (*models.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ratings {
		if f.ratings[i].EventID == eventID && f.ratings[i].UserID == userID {
			cp := f.ratings[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateAndRecompute(_ context.Context, rating *models.Rating) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ratings {
		if f.ratings[i].EventID == rating.EventID && f.ratings[i].UserID == rating.UserID {
			return 0, ErrDuplicate
		}
	}
	rating.ID = uuid.New()
	f.ratings = append(f.ratings, *rating)

	sum, n := 0, 0
	for i := range f.ratings {
		if f.ratings[i].EventID == rating.EventID {
			sum += f.ratings[i].Score
			n++
		}
	}
	avg := float64(sum) / float64(n)
	if e, ok := f.events[rating.EventID]; ok {
		e.AverageRating = avg
	}
	return avg, nil
}

func (f *fakeStore) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.Rating
	for i := range f.ratings {
		if f.ratings[i].EventID == eventID {
			list = append(list, f.ratings[i])
		}
	}
	return list, nil
}

func (f *fakeStore) addAttendee(eventID uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID := uuid.New()
	reg := &models.Registration{
		ID:           uuid.New(),
		EventID:      eventID,
		UserID:       userID,
		Status:       models.RegistrationConfirmed,
		CheckInCount: 1,
	}
	f.regs[reg.ID] = reg
	return userID
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

func newEvent(store *fakeStore) *models.Event {
	e := &models.Event{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		Title:       "Conference",
		Status:      models.EventFinished,
	}
	store.events[e.ID] = e
	return e
}

func TestRate(t *testing.T) {
	store := newFakeStore()
	e := newEvent(store)
	svc := NewService(store)
	user := store.addAttendee(e.ID)

	result, err := svc.Rate(context.Background(), e.ID, user, 4, "  great talks  ")
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if result.Rating.Score != 4 {
		t.Fatalf("score = %d, want 4", result.Rating.Score)
	}
	if result.Rating.Comment != "great talks" {
		t.Fatalf("comment = %q, want trimmed", result.Rating.Comment)
	}
	if result.EventAverage != 4 {
		t.Fatalf("average = %v, want 4", result.EventAverage)
	}
}

func TestRateScoreBounds(t *testing.T) {
	store := newFakeStore()
	e := newEvent(store)
	svc := NewService(store)
	user := store.addAttendee(e.ID)

	for _, score := range []int{0, -1, 6} {
		_, err := svc.Rate(context.Background(), e.ID, user, score, "")
		wantKind(t, err, apperr.KindValidation)
	}
}

func TestRateOncePerPair(t *testing.T) {
	store := newFakeStore()
	e := newEvent(store)
	svc := NewService(store)
	user := store.addAttendee(e.ID)

	if _, err := svc.Rate(context.Background(), e.ID, user, 5, ""); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	_, err := svc.Rate(context.Background(), e.ID, user, 3, "")
	wantKind(t, err, apperr.KindAlreadyExists)

	// The stored score is immutable.
	list, _ := store.ListByEvent(context.Background(), e.ID)
	if len(list) != 1 || list[0].Score != 5 {
		t.Fatalf("stored ratings = %+v, want one score of 5", list)
	}
}

func TestRateRequiresAttendance(t *testing.T) {
	store := newFakeStore()
	e := newEvent(store)
	svc := NewService(store)

	t.Run("no registration", func(t *testing.T) {
		_, err := svc.Rate(context.Background(), e.ID, uuid.New(), 3, "")
		wantKind(t, err, apperr.KindNotFound)
	})

	t.Run("pending registration", func(t *testing.T) {
		userID := uuid.New()
		reg := &models.Registration{ID: uuid.New(), EventID: e.ID, UserID: userID,
			Status: models.RegistrationPending, CheckInCount: 1}
		store.regs[reg.ID] = reg
		_, err := svc.Rate(context.Background(), e.ID, userID, 3, "")
		wantKind(t, err, apperr.KindInvalidState)
	})

	t.Run("no check-in", func(t *testing.T) {
		userID := uuid.New()
		reg := &models.Registration{ID: uuid.New(), EventID: e.ID, UserID: userID,
			Status: models.RegistrationApproved, CheckInCount: 0}
		store.regs[reg.ID] = reg
		_, err := svc.Rate(context.Background(), e.ID, userID, 3, "")
		wantKind(t, err, apperr.KindInvalidState)
	})
}

func TestAverageTracksAllScores(t *testing.T) {
	store := newFakeStore()
	e := newEvent(store)
	svc := NewService(store)

	scores := []int{5, 3, 4, 1, 2}
	var last float64
	for _, score := range scores {
		user := store.addAttendee(e.ID)
		result, err := svc.Rate(context.Background(), e.ID, user, score, "")
		if err != nil {
			t.Fatalf("Rate(%d): %v", score, err)
		}
		last = result.EventAverage
	}
	if math.Abs(last-3.0) > 1e-9 {
		t.Fatalf("average = %v, want 3.0", last)
	}
	if math.Abs(store.events[e.ID].AverageRating-3.0) > 1e-9 {
		t.Fatalf("cached average = %v, want 3.0", store.events[e.ID].AverageRating)
	}
}

func TestAverageConcurrent(t *testing.T) {
	store := newFakeStore()
	e := newEvent(store)
	svc := NewService(store)

	const n = 20
	users := make([]uuid.UUID, n)
	for i := range users {
		users[i] = store.addAttendee(e.ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score := i%5 + 1
			if _, err := svc.Rate(context.Background(), e.ID, users[i], score, ""); err != nil {
				t.Errorf("Rate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// 20 users cycling scores 1..5 average exactly 3.
	if math.Abs(store.events[e.ID].AverageRating-3.0) > 1e-9 {
		t.Fatalf("cached average = %v, want 3.0", store.events[e.ID].AverageRating)
	}
	list, _ := store.ListByEvent(context.Background(), e.ID)
	if len(list) != n {
		t.Fatalf("stored %d ratings, want %d", len(list), n)
	}
}
