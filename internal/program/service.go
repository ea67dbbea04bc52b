// Package program はプログラム閲覧・受講登録・管理者によるコンテンツ管理のドメインロジックを提供する。
package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/mentorhub/internal/model"
	"github.com/hitoshi/mentorhub/internal/repository"
	"github.com/hitoshi/mentorhub/internal/security"
)

// Sanitizer は管理者入力の無害化インターフェース。
type Sanitizer interface {
	Description(raw string) string
	Plain(raw string) string
}

// Detail はプログラム詳細画面の表示内容。
type Detail struct {
	Program   *model.Program
	Videos    []*model.Video
	Resources []*model.Resource
}

// CreateProgramInput はプログラム作成フォームの入力。
type CreateProgramInput struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	CoverImage  string `validate:"omitempty,url"`
}

// CreateVideoInput は動画登録フォームの入力。
type CreateVideoInput struct {
	ProgramID   string `validate:"required,uuid"`
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	YoutubeURL  string `validate:"required,url"`
}

// CreateResourceInput は配布資料登録フォームの入力。
type CreateResourceInput struct {
	ProgramID   string `validate:"required,uuid"`
	Title       string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	FileURL     string `validate:"required,url"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service はプログラム関連のサービス層。
type Service struct {
	programs    repository.ProgramRepository
	videos      repository.VideoRepository
	resources   repository.ResourceRepository
	enrollments repository.EnrollmentRepository
	sanitizer   Sanitizer
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	programs repository.ProgramRepository,
	videos repository.VideoRepository,
	resources repository.ResourceRepository,
	enrollments repository.EnrollmentRepository,
	sanitizer Sanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		programs:    programs,
		videos:      videos,
		resources:   resources,
		enrollments: enrollments,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// List は全プログラムを返す。
func (s *Service) List(ctx context.Context) ([]*model.Program, error) {
	programs, err := s.programs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("プログラム一覧の取得に失敗しました: %w", err)
	}
	if programs == nil {
		programs = []*model.Program{}
	}
	return programs, nil
}

// Detail はプログラムと、それに属する動画・配布資料を返す。
func (s *Service) Detail(ctx context.Context, programID string) (*Detail, error) {
	p, err := s.findProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	videos, err := s.videos.ListByProgram(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("動画一覧の取得に失敗しました: %w", err)
	}
	resources, err := s.resources.ListByProgram(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("配布資料一覧の取得に失敗しました: %w", err)
	}
	if videos == nil {
		videos = []*model.Video{}
	}
	if resources == nil {
		resources = []*model.Resource{}
	}

	return &Detail{Program: p, Videos: videos, Resources: resources}, nil
}

// Enroll はユーザーをプログラムに受講登録する。
// 登録済みの場合はALREADY_ENROLLEDを返す。
func (s *Service) Enroll(ctx context.Context, userID, programID string) (*model.Enrollment, error) {
	p, err := s.findProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	total, err := s.videos.CountByProgram(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("動画数の取得に失敗しました: %w", err)
	}

	e := &model.Enrollment{
		UserID:      userID,
		ProgramID:   p.ID,
		TotalVideos: total,
	}
	if err := s.enrollments.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyEnrolledError()
		}
		return nil, fmt.Errorf("受講登録に失敗しました: %w", err)
	}

	s.logger.Info("受講登録しました",
		slog.String("user_id", userID),
		slog.String("program_id", p.ID),
	)
	return e, nil
}

// Dashboard はユーザーの受講状況一覧を返す。
func (s *Service) Dashboard(ctx context.Context, userID string) ([]model.EnrollmentWithProgram, error) {
	enrollments, err := s.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("受講状況の取得に失敗しました: %w", err)
	}
	if enrollments == nil {
		enrollments = []model.EnrollmentWithProgram{}
	}
	return enrollments, nil
}

// CreateProgram はプログラムを作成する。
func (s *Service) CreateProgram(ctx context.Context, in CreateProgramInput) (*model.Program, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.CoverImage = strings.TrimSpace(in.CoverImage)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.CoverImage != "" {
		if err := security.ValidatePublicURL(in.CoverImage); err != nil {
			return nil, model.NewInvalidURLError(err.Error())
		}
	}

	p := &model.Program{
		Title:       s.sanitizer.Plain(in.Title),
		Description: s.sanitizer.Description(in.Description),
		CoverImage:  in.CoverImage,
	}
	if p.Title == "" {
		return nil, model.NewValidationError("タイトルを入力してください")
	}
	if err := s.programs.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("プログラムの作成に失敗しました: %w", err)
	}

	s.logger.Info("プログラムを作成しました", slog.String("program_id", p.ID))
	return p, nil
}

// DeleteProgram はプログラムを削除する。動画・資料・受講状況も削除される。
func (s *Service) DeleteProgram(ctx context.Context, programID string) error {
	if !isUUID(programID) {
		return model.NewProgramNotFoundError(programID)
	}
	if err := s.programs.Delete(ctx, programID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewProgramNotFoundError(programID)
		}
		return fmt.Errorf("プログラムの削除に失敗しました: %w", err)
	}

	s.logger.Info("プログラムを削除しました", slog.String("program_id", programID))
	return nil
}

// CreateVideo はプログラムに動画を登録する。
func (s *Service) CreateVideo(ctx context.Context, in CreateVideoInput) (*model.Video, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.YoutubeURL = strings.TrimSpace(in.YoutubeURL)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := security.ValidatePublicURL(in.YoutubeURL); err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	if _, err := s.findProgram(ctx, in.ProgramID); err != nil {
		return nil, err
	}

	v := &model.Video{
		ProgramID:   in.ProgramID,
		Title:       s.sanitizer.Plain(in.Title),
		Description: s.sanitizer.Description(in.Description),
		YoutubeURL:  in.YoutubeURL,
	}
	if err := s.videos.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("動画の登録に失敗しました: %w", err)
	}
	return v, nil
}

// DeleteVideo は動画を削除する。
func (s *Service) DeleteVideo(ctx context.Context, videoID string) error {
	return s.deleteContent(ctx, "動画", videoID, s.videos.Delete)
}

// CreateResource はプログラムに配布資料を登録する。
func (s *Service) CreateResource(ctx context.Context, in CreateResourceInput) (*model.Resource, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.FileURL = strings.TrimSpace(in.FileURL)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := security.ValidatePublicURL(in.FileURL); err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	if _, err := s.findProgram(ctx, in.ProgramID); err != nil {
		return nil, err
	}

	res := &model.Resource{
		ProgramID:   in.ProgramID,
		Title:       s.sanitizer.Plain(in.Title),
		Description: s.sanitizer.Description(in.Description),
		FileURL:     in.FileURL,
	}
	if err := s.resources.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("配布資料の登録に失敗しました: %w", err)
	}
	return res, nil
}

// DeleteResource は配布資料を削除する。
func (s *Service) DeleteResource(ctx context.Context, resourceID string) error {
	return s.deleteContent(ctx, "配布資料", resourceID, s.resources.Delete)
}

func (s *Service) deleteContent(ctx context.Context, kind, id string, del func(context.Context, string) error) error {
	if !isUUID(id) {
		return model.NewContentNotFoundError(kind, id)
	}
	if err := del(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewContentNotFoundError(kind, id)
		}
		return fmt.Errorf("%sの削除に失敗しました: %w", kind, err)
	}
	return nil
}

// findProgram はIDでプログラムを取得する。UUID形式でない場合や存在しない場合はPROGRAM_NOT_FOUNDを返す。
func (s *Service) findProgram(ctx context.Context, programID string) (*model.Program, error) {
	if !isUUID(programID) {
		return nil, model.NewProgramNotFoundError(programID)
	}
	p, err := s.programs.FindByID(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("プログラムの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewProgramNotFoundError(programID)
	}
	return p, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validateInput は構造体タグで入力を検証し、違反をVALIDATION_FAILEDにまとめる。
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("入力検証に失敗しました: %w", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return model.NewValidationError(strings.Join(messages, "。"))
}

var fieldLabels = map[string]string{
	"Title":       "タイトル",
	"Description": "説明",
	"CoverImage":  "カバー画像URL",
	"ProgramID":   "プログラムID",
	"YoutubeURL":  "動画URL",
	"FileURL":     "資料URL",
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + "を入力してください"
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください", label, fe.Param())
	case "url":
		return label + "の形式が正しくありません"
	case "uuid":
		return label + "が正しくありません"
	default:
		return label + "が不正です"
	}
}
