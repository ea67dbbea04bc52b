package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/mentorhub/internal/auth"
	"github.com/hitoshi/mentorhub/internal/identity"
	"github.com/hitoshi/mentorhub/internal/middleware"
	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/program"
	"github.com/hitoshi/mentorhub/internal/user"
)

const (
	testUserID    = "11111111-1111-1111-1111-111111111111"
	testAdminID   = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	testProgramID = "33333333-3333-3333-3333-333333333333"
	testCSRFToken = "csrf-token-for-tests"
)

// --- モック定義 ---

type mockAuthService struct {
	signInFn  func(ctx context.Context, email, password string) (*auth.SignInResult, error)
	signUpFn  func(ctx context.Context, in auth.SignUpInput) (*model.User, error)
	signOutFn func(ctx context.Context, accessToken string)
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*auth.SignInResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, &identity.Error{Kind: identity.KindInvalidCredentials}
}

func (m *mockAuthService) SignUp(ctx context.Context, in auth.SignUpInput) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return &model.User{ID: testUserID, Email: in.Email, Name: in.Name, Role: model.RoleUser, Level: model.LevelHighSchool}, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, accessToken string) {
	if m.signOutFn != nil {
		m.signOutFn(ctx, accessToken)
	}
}

type mockProfileService struct {
	meFn func(ctx context.Context, session model.Session) (*user.Profile, error)
}

func (m *mockProfileService) Me(ctx context.Context, session model.Session) (*user.Profile, error) {
	if m.meFn != nil {
		return m.meFn(ctx, session)
	}
	return &user.Profile{ID: session.UserID, Email: "me@example.com", Role: model.RoleUser, SessionKind: session.Kind}, nil
}

type mockProgramService struct {
	listFn      func(ctx context.Context) ([]*model.Program, error)
	detailFn    func(ctx context.Context, programID string) (*program.Detail, error)
	enrollFn    func(ctx context.Context, userID, programID string) (*model.Enrollment, error)
	dashboardFn func(ctx context.Context, userID string) ([]model.EnrollmentWithProgram, error)
}

func (m *mockProgramService) List(ctx context.Context) ([]*model.Program, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.Program{}, nil
}

func (m *mockProgramService) Detail(ctx context.Context, programID string) (*program.Detail, error) {
	if m.detailFn != nil {
		return m.detailFn(ctx, programID)
	}
	return nil, model.NewProgramNotFoundError(programID)
}

func (m *mockProgramService) Enroll(ctx context.Context, userID, programID string) (*model.Enrollment, error) {
	if m.enrollFn != nil {
		return m.enrollFn(ctx, userID, programID)
	}
	return &model.Enrollment{ID: "e-1", UserID: userID, ProgramID: programID}, nil
}

func (m *mockProgramService) Dashboard(ctx context.Context, userID string) ([]model.EnrollmentWithProgram, error) {
	if m.dashboardFn != nil {
		return m.dashboardFn(ctx, userID)
	}
	return []model.EnrollmentWithProgram{}, nil
}

type mockContentAdmin struct {
	createProgramFn  func(ctx context.Context, in program.CreateProgramInput) (*model.Program, error)
	deleteProgramFn  func(ctx context.Context, id string) error
	createVideoFn    func(ctx context.Context, in program.CreateVideoInput) (*model.Video, error)
	deleteVideoFn    func(ctx context.Context, id string) error
	createResourceFn func(ctx context.Context, in program.CreateResourceInput) (*model.Resource, error)
	deleteResourceFn func(ctx context.Context, id string) error
}

func (m *mockContentAdmin) CreateProgram(ctx context.Context, in program.CreateProgramInput) (*model.Program, error) {
	if m.createProgramFn != nil {
		return m.createProgramFn(ctx, in)
	}
	return &model.Program{ID: testProgramID, Title: in.Title}, nil
}

func (m *mockContentAdmin) DeleteProgram(ctx context.Context, id string) error {
	if m.deleteProgramFn != nil {
		return m.deleteProgramFn(ctx, id)
	}
	return nil
}

func (m *mockContentAdmin) CreateVideo(ctx context.Context, in program.CreateVideoInput) (*model.Video, error) {
	if m.createVideoFn != nil {
		return m.createVideoFn(ctx, in)
	}
	return &model.Video{ID: "v-1", ProgramID: in.ProgramID, Title: in.Title, YoutubeURL: in.YoutubeURL}, nil
}

func (m *mockContentAdmin) DeleteVideo(ctx context.Context, id string) error {
	if m.deleteVideoFn != nil {
		return m.deleteVideoFn(ctx, id)
	}
	return nil
}

func (m *mockContentAdmin) CreateResource(ctx context.Context, in program.CreateResourceInput) (*model.Resource, error) {
	if m.createResourceFn != nil {
		return m.createResourceFn(ctx, in)
	}
	return &model.Resource{ID: "r-1", ProgramID: in.ProgramID, Title: in.Title, FileURL: in.FileURL}, nil
}

func (m *mockContentAdmin) DeleteResource(ctx context.Context, id string) error {
	if m.deleteResourceFn != nil {
		return m.deleteResourceFn(ctx, id)
	}
	return nil
}

type mockUserAdmin struct {
	listFn       func(ctx context.Context) ([]*model.User, error)
	updateRoleFn func(ctx context.Context, actorID, targetID, role string) error
}

func (m *mockUserAdmin) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.User{}, nil
}

func (m *mockUserAdmin) UpdateRole(ctx context.Context, actorID, targetID, role string) error {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, actorID, targetID, role)
	}
	return nil
}

// compile-time interface check
var (
	_ AuthServiceInterface         = (*auth.Service)(nil)
	_ ProfileServiceInterface      = (*user.Service)(nil)
	_ UserAdminServiceInterface    = (*user.Service)(nil)
	_ ProgramServiceInterface      = (*program.Service)(nil)
	_ ContentAdminServiceInterface = (*program.Service)(nil)
)

// --- テストヘルパー ---

// withSession はミドルウェアを通さずにセッションを注入したリクエストを返す。
func withSession(r *http.Request, s model.Session) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), s))
}

// withUserID は認可済みユーザーIDを注入したリクエストを返す。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// decodeError はレスポンスボディを統一エラーフォーマットとしてデコードする。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v (body=%q)", err, w.Body.String())
	}
	return body
}

// findCookie はレスポンスから指定名のSet-Cookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
