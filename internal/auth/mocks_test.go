package auth

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/metrics"
	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/repository"
)

// --- モック定義 ---

type mockIdentityClient struct {
	signInFn    func(ctx context.Context, email, password string) (*identity.Session, error)
	signUpFn    func(ctx context.Context, email, password string, profile identity.Profile) (*model.Identity, error)
	signOutFn   func(ctx context.Context, accessToken string) error
	getUserFn   func(ctx context.Context, accessToken string) (*model.Identity, error)
	refreshFn   func(ctx context.Context, refreshToken string) (*identity.Session, error)
	listUsersFn func(ctx context.Context, page, perPage int) ([]model.Identity, error)
}

func (m *mockIdentityClient) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, &identity.Error{Kind: identity.KindUnknown, Message: "not configured"}
}

func (m *mockIdentityClient) SignUp(ctx context.Context, email, password string, profile identity.Profile) (*model.Identity, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, profile)
	}
	return nil, &identity.Error{Kind: identity.KindUnknown, Message: "not configured"}
}

func (m *mockIdentityClient) SignOut(ctx context.Context, accessToken string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockIdentityClient) GetUser(ctx context.Context, accessToken string) (*model.Identity, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, accessToken)
	}
	return nil, &identity.Error{Kind: identity.KindInvalidSession, Message: "no session"}
}

func (m *mockIdentityClient) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, &identity.Error{Kind: identity.KindInvalidSession, Message: "no session"}
}

func (m *mockIdentityClient) ListUsers(ctx context.Context, page, perPage int) ([]model.Identity, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, page, perPage)
	}
	return nil, nil
}

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	findRoleByIDFn   func(ctx context.Context, id string) (model.Role, error)
	createFn         func(ctx context.Context, user *model.User) error
	updateRoleFn     func(ctx context.Context, id string, role model.Role) error
	listFn           func(ctx context.Context) ([]*model.User, error)
	findMissingIDsFn func(ctx context.Context, ids []string) ([]string, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindRoleByID(ctx context.Context, id string) (model.Role, error) {
	if m.findRoleByIDFn != nil {
		return m.findRoleByIDFn(ctx, id)
	}
	return "", nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, id, role)
	}
	return nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) FindMissingIDs(ctx context.Context, ids []string) ([]string, error) {
	if m.findMissingIDsFn != nil {
		return m.findMissingIDsFn(ctx, ids)
	}
	return nil, nil
}

type mockAnomalyRepo struct {
	mu       sync.Mutex
	recorded []model.Anomaly
	recordFn func(ctx context.Context, a *model.Anomaly) error
}

func (m *mockAnomalyRepo) Record(ctx context.Context, a *model.Anomaly) error {
	m.mu.Lock()
	m.recorded = append(m.recorded, *a)
	m.mu.Unlock()
	if m.recordFn != nil {
		return m.recordFn(ctx, a)
	}
	return nil
}

type mockLegacyRepo struct {
	listFn   func(ctx context.Context) ([]repository.LegacyPassword, error)
	countFn  func(ctx context.Context) (int, error)
	updateFn func(ctx context.Context, id, expected, hash string) error
}

func (m *mockLegacyRepo) ListLegacyPasswords(ctx context.Context) ([]repository.LegacyPassword, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockLegacyRepo) CountLegacyPasswords(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockLegacyRepo) UpdatePasswordHash(ctx context.Context, id, expected, hash string) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, expected, hash)
	}
	return nil
}

// recordingMetrics は呼び出しを記録するMetricsCollector。
type recordingMetrics struct {
	metrics.NopCollector
	mu      sync.Mutex
	signIns []string
	denials []string
	anomaly []string
	legacy  int
}

func (r *recordingMetrics) RecordSignIn(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signIns = append(r.signIns, result)
}

func (r *recordingMetrics) RecordAuthzDenial(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, reason)
}

func (r *recordingMetrics) RecordAnomaly(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomaly = append(r.anomaly, kind)
}

func (r *recordingMetrics) SetLegacyPasswords(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legacy = count
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// compile-time interface check
var (
	_ identity.Client                     = (*mockIdentityClient)(nil)
	_ repository.UserRepository           = (*mockUserRepo)(nil)
	_ repository.AnomalyRepository        = (*mockAnomalyRepo)(nil)
	_ repository.LegacyPasswordRepository = (*mockLegacyRepo)(nil)
	_ metrics.MetricsCollector            = (*recordingMetrics)(nil)
)
