package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mentorhub/internal/middleware"
	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/program"
)

// ContentAdminServiceInterface は管理者によるコンテンツ管理のサービスインターフェース。
type ContentAdminServiceInterface interface {
	CreateProgram(ctx context.Context, in program.CreateProgramInput) (*model.Program, error)
	DeleteProgram(ctx context.Context, programID string) error
	CreateVideo(ctx context.Context, in program.CreateVideoInput) (*model.Video, error)
	DeleteVideo(ctx context.Context, videoID string) error
	CreateResource(ctx context.Context, in program.CreateResourceInput) (*model.Resource, error)
	DeleteResource(ctx context.Context, resourceID string) error
}

// UserAdminServiceInterface は管理者によるユーザー管理のサービスインターフェース。
type UserAdminServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	UpdateRole(ctx context.Context, actorID, targetID, role string) error
}

// AdminHandler は管理画面のHTTPハンドラー。
// ルーティングでADMINロールの認可を通過したリクエストのみを受け付ける。
type AdminHandler struct {
	content ContentAdminServiceInterface
	users   UserAdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(content ContentAdminServiceInterface, users UserAdminServiceInterface) *AdminHandler {
	return &AdminHandler{content: content, users: users}
}

type adminUserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

type createProgramRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CoverImage  string `json:"cover_image"`
}

type createVideoRequest struct {
	ProgramID   string `json:"program_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	YoutubeURL  string `json:"youtube_url"`
}

type createResourceRequest struct {
	ProgramID   string `json:"program_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FileURL     string `json:"file_url"`
}

// ListUsers は全ユーザーを返す。パスワードハッシュは含めない。
// GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, adminUserResponse{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      string(u.Role),
			Level:     string(u.Level),
			CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateUserRole はユーザーのロールを変更する。
// POST /admin/users/{id}/role
func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.users.UpdateRole(r.Context(), actorID, chi.URLParam(r, "id"), req.Role); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateProgram はプログラムを作成する。
// POST /admin/programs
func (h *AdminHandler) CreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.content.CreateProgram(r.Context(), program.CreateProgramInput{
		Title:       req.Title,
		Description: req.Description,
		CoverImage:  req.CoverImage,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProgramResponse(p))
}

// DeleteProgram はプログラムを削除する。
// POST /admin/programs/{id}/delete
func (h *AdminHandler) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, h.content.DeleteProgram)
}

// CreateVideo は動画を登録する。
// POST /admin/videos
func (h *AdminHandler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.content.CreateVideo(r.Context(), program.CreateVideoInput{
		ProgramID:   req.ProgramID,
		Title:       req.Title,
		Description: req.Description,
		YoutubeURL:  req.YoutubeURL,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVideoResponse(v))
}

// DeleteVideo は動画を削除する。
// POST /admin/videos/{id}/delete
func (h *AdminHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, h.content.DeleteVideo)
}

// CreateResource は配布資料を登録する。
// POST /admin/resources
func (h *AdminHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.content.CreateResource(r.Context(), program.CreateResourceInput{
		ProgramID:   req.ProgramID,
		Title:       req.Title,
		Description: req.Description,
		FileURL:     req.FileURL,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceResponse(res))
}

// DeleteResource は配布資料を削除する。
// POST /admin/resources/{id}/delete
func (h *AdminHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	h.deleteBy(w, r, h.content.DeleteResource)
}

func (h *AdminHandler) deleteBy(w http.ResponseWriter, r *http.Request, del func(context.Context, string) error) {
	if err := del(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
