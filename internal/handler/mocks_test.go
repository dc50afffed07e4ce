package handler

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/auth"
	"github.com/hitoshi/campusevent/internal/event"
	"github.com/hitoshi/campusevent/internal/feedback"
	"github.com/hitoshi/campusevent/internal/middleware"
	"github.com/hitoshi/campusevent/internal/model"
	"github.com/hitoshi/campusevent/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.LoginResult, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: "new-user", Name: in.Name, Email: in.Email, Role: model.Role(in.Role)}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

type mockUserService struct {
	meFn     func(ctx context.Context, userID string) (*model.User, error)
	updateFn func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error)
}

func (m *mockUserService) Me(ctx context.Context, userID string) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, userID)
	}
	return &model.User{ID: userID, Role: model.RoleStudent}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

type mockEventService struct {
	listFn   func(ctx context.Context, opts event.ListOptions) ([]model.EventWithCount, error)
	getFn    func(ctx context.Context, id string) (*model.EventWithCount, error)
	createFn func(ctx context.Context, organizerEmail string, in event.Input) (*model.Event, error)
	updateFn func(ctx context.Context, id string, in event.Input) (*model.Event, error)
	deleteFn func(ctx context.Context, id string) error
	owners   map[string]string
	mutated  int
}

func (m *mockEventService) List(ctx context.Context, opts event.ListOptions) ([]model.EventWithCount, error) {
	if m.listFn != nil {
		return m.listFn(ctx, opts)
	}
	return []model.EventWithCount{}, nil
}

func (m *mockEventService) Get(ctx context.Context, id string) (*model.EventWithCount, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.EventWithCount{Event: model.Event{ID: id}}, nil
}

func (m *mockEventService) Create(ctx context.Context, organizerEmail string, in event.Input) (*model.Event, error) {
	m.mutated++
	if m.createFn != nil {
		return m.createFn(ctx, organizerEmail, in)
	}
	return &model.Event{ID: "new-event", Title: in.Title, Organizer: organizerEmail}, nil
}

func (m *mockEventService) Update(ctx context.Context, id string, in event.Input) (*model.Event, error) {
	m.mutated++
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in)
	}
	return &model.Event{ID: id, Title: in.Title}, nil
}

func (m *mockEventService) Delete(ctx context.Context, id string) error {
	m.mutated++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// OwnerEmail はownersに登録されたイベントの主催者を返す。
func (m *mockEventService) OwnerEmail(_ context.Context, id string) (string, error) {
	owner, ok := m.owners[id]
	if !ok {
		return "", access.ErrResourceNotFound
	}
	return owner, nil
}

type mockRegistrationService struct {
	registerFn        func(ctx context.Context, eventID, userID, email string) (*model.Registration, error)
	cancelFn          func(ctx context.Context, eventID, userID string) error
	listMineFn        func(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error)
	listRegistrantsFn func(ctx context.Context, eventID string) ([]model.Registrant, error)
	exportFn          func(ctx context.Context, eventID string, w io.Writer) error
}

func (m *mockRegistrationService) Register(ctx context.Context, eventID, userID, email string) (*model.Registration, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, eventID, userID, email)
	}
	return &model.Registration{ID: "reg-1", EventID: eventID, UserID: userID}, nil
}

func (m *mockRegistrationService) Cancel(ctx context.Context, eventID, userID string) error {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, eventID, userID)
	}
	return nil
}

func (m *mockRegistrationService) ListMine(ctx context.Context, userID string) ([]model.RegistrationWithEvent, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, userID)
	}
	return []model.RegistrationWithEvent{}, nil
}

func (m *mockRegistrationService) ListRegistrants(ctx context.Context, eventID string) ([]model.Registrant, error) {
	if m.listRegistrantsFn != nil {
		return m.listRegistrantsFn(ctx, eventID)
	}
	return []model.Registrant{}, nil
}

func (m *mockRegistrationService) ExportCSV(ctx context.Context, eventID string, w io.Writer) error {
	if m.exportFn != nil {
		return m.exportFn(ctx, eventID, w)
	}
	_, err := io.WriteString(w, "registration_id,name,email,student_id,registered_at\n")
	return err
}

type mockFeedbackService struct {
	submitFn func(ctx context.Context, eventID, userID string, rating int, comment string) (*model.Feedback, error)
	listFn   func(ctx context.Context, eventID string) (*feedback.EventFeedback, error)
}

func (m *mockFeedbackService) Submit(ctx context.Context, eventID, userID string, rating int, comment string) (*model.Feedback, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, eventID, userID, rating, comment)
	}
	return &model.Feedback{ID: "fb-1", EventID: eventID, UserID: userID, Rating: rating, Comment: comment}, nil
}

func (m *mockFeedbackService) List(ctx context.Context, eventID string) (*feedback.EventFeedback, error) {
	if m.listFn != nil {
		return m.listFn(ctx, eventID)
	}
	return &feedback.EventFeedback{Items: []model.Feedback{}}, nil
}

type mockStatsService struct {
	getFn func(ctx context.Context) (*model.Stats, error)
}

func (m *mockStatsService) Get(ctx context.Context) (*model.Stats, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return &model.Stats{UsersByRole: map[model.Role]int{}}, nil
}

type fakeDecisionRecorder struct {
	kinds []string
}

func (f *fakeDecisionRecorder) RecordAccessDecision(kind string)    { f.kinds = append(f.kinds, kind) }
func (f *fakeDecisionRecorder) RecordHTTPStatus(int)                {}
func (f *fakeDecisionRecorder) RecordRequestDuration(time.Duration) {}
func (f *fakeDecisionRecorder) RecordNotification(string, bool)     {}
func (f *fakeDecisionRecorder) ObserveCacheRequest(bool)            {}
func (f *fakeDecisionRecorder) RecordRemindersSent(int)             {}
func (f *fakeDecisionRecorder) RecordEventsPurged(int64)            {}

// --- compile-time interface checks ---

var (
	_ AuthServiceInterface         = (*mockAuthService)(nil)
	_ UserServiceInterface         = (*mockUserService)(nil)
	_ EventServiceInterface        = (*mockEventService)(nil)
	_ EventOwnerLookup             = (*mockEventService)(nil)
	_ RegistrationServiceInterface = (*mockRegistrationService)(nil)
	_ FeedbackServiceInterface     = (*mockFeedbackService)(nil)
	_ StatsServiceInterface        = (*mockStatsService)(nil)
)

// --- テスト用ルーター ---

var testTokenSecret = []byte("handler-test-secret")

type testEnv struct {
	router   http.Handler
	codec    *auth.TokenCodec
	auth     *mockAuthService
	users    *mockUserService
	events   *mockEventService
	regs     *mockRegistrationService
	feedback *mockFeedbackService
	stats    *mockStatsService
	recorder *fakeDecisionRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := auth.NewTokenCodec(testTokenSecret)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}

	env := &testEnv{
		codec:    codec,
		auth:     &mockAuthService{},
		users:    &mockUserService{},
		events:   &mockEventService{owners: map[string]string{"7d3c1f0a-2b4e-4c6d-8e9f-0a1b2c3d4e5f": "org@example.ac.jp"}},
		regs:     &mockRegistrationService{},
		feedback: &mockFeedbackService{},
		stats:    &mockStatsService{},
		recorder: &fakeDecisionRecorder{},
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(6000, 6000))
	t.Cleanup(limiter.Stop)

	env.router = NewRouter(&RouterDeps{
		Metrics:             env.recorder,
		TokenDecoder:        codec,
		CORSAllowedOrigin:   "http://localhost:3000",
		RateLimiter:         limiter,
		AuthService:         env.auth,
		UserService:         env.users,
		EventService:        env.events,
		EventOwners:         env.events,
		RegistrationService: env.regs,
		FeedbackService:     env.feedback,
		StatsService:        env.stats,
	})
	return env
}

// tokenFor は指定ロールのユーザーのトークンを発行する。
func (e *testEnv) tokenFor(t *testing.T, id, email string, role model.Role) string {
	t.Helper()
	token, _, err := e.codec.Issue(&model.User{ID: id, Email: email, Role: role})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}
