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

// ProgramServiceInterface はプログラム閲覧・受講登録ハンドラーが必要とするサービスインターフェース。
type ProgramServiceInterface interface {
	List(ctx context.Context) ([]*model.Program, error)
	Detail(ctx context.Context, programID string) (*program.Detail, error)
	Enroll(ctx context.Context, userID, programID string) (*model.Enrollment, error)
	Dashboard(ctx context.Context, userID string) ([]model.EnrollmentWithProgram, error)
}

// ProgramHandler はプログラム閲覧・受講登録のHTTPハンドラー。
type ProgramHandler struct {
	service ProgramServiceInterface
}

// NewProgramHandler はProgramHandlerを生成する。
func NewProgramHandler(service ProgramServiceInterface) *ProgramHandler {
	return &ProgramHandler{service: service}
}

type programResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CoverImage  string    `json:"cover_image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type videoResponse struct {
	ID          string `json:"id"`
	ProgramID   string `json:"program_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	YoutubeURL  string `json:"youtube_url"`
}

type resourceResponse struct {
	ID          string `json:"id"`
	ProgramID   string `json:"program_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FileURL     string `json:"file_url"`
}

type programDetailResponse struct {
	programResponse
	Videos    []videoResponse    `json:"videos"`
	Resources []resourceResponse `json:"resources"`
}

type enrollmentResponse struct {
	ID              string    `json:"id"`
	ProgramID       string    `json:"program_id"`
	ProgramTitle    string    `json:"program_title,omitempty"`
	TotalVideos     int       `json:"total_videos"`
	WatchedVideos   int       `json:"watched_videos"`
	PercentComplete int       `json:"percent_complete"`
	CreatedAt       time.Time `json:"created_at"`
}

func toProgramResponse(p *model.Program) programResponse {
	return programResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		CoverImage:  p.CoverImage,
		CreatedAt:   p.CreatedAt,
	}
}

func toVideoResponse(v *model.Video) videoResponse {
	return videoResponse{
		ID:          v.ID,
		ProgramID:   v.ProgramID,
		Title:       v.Title,
		Description: v.Description,
		YoutubeURL:  v.YoutubeURL,
	}
}

func toResourceResponse(r *model.Resource) resourceResponse {
	return resourceResponse{
		ID:          r.ID,
		ProgramID:   r.ProgramID,
		Title:       r.Title,
		Description: r.Description,
		FileURL:     r.FileURL,
	}
}

// ListPrograms はプログラム一覧を返す。
// GET /programs
func (h *ProgramHandler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]programResponse, 0, len(programs))
	for _, p := range programs {
		resp = append(resp, toProgramResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProgram はプログラム詳細を動画・配布資料付きで返す。
// GET /programs/{id}
func (h *ProgramHandler) GetProgram(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := programDetailResponse{
		programResponse: toProgramResponse(d.Program),
		Videos:          make([]videoResponse, 0, len(d.Videos)),
		Resources:       make([]resourceResponse, 0, len(d.Resources)),
	}
	for _, v := range d.Videos {
		resp.Videos = append(resp.Videos, toVideoResponse(v))
	}
	for _, res := range d.Resources {
		resp.Resources = append(resp.Resources, toResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Enroll は呼び出し元ユーザーをプログラムに受講登録する。
// POST /programs/{id}/enroll
func (h *ProgramHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	e, err := h.service.Enroll(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, enrollmentResponse{
		ID:              e.ID,
		ProgramID:       e.ProgramID,
		TotalVideos:     e.TotalVideos,
		WatchedVideos:   e.WatchedVideos,
		PercentComplete: e.PercentComplete,
		CreatedAt:       e.CreatedAt,
	})
}

// Dashboard は呼び出し元ユーザーの受講状況一覧を返す。
// GET /dashboard
func (h *ProgramHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	enrollments, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]enrollmentResponse, 0, len(enrollments))
	for _, e := range enrollments {
		resp = append(resp, enrollmentResponse{
			ID:              e.ID,
			ProgramID:       e.ProgramID,
			ProgramTitle:    e.ProgramTitle,
			TotalVideos:     e.TotalVideos,
			WatchedVideos:   e.WatchedVideos,
			PercentComplete: e.PercentComplete,
			CreatedAt:       e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
