package model

import "time"

// Program はメンタリングプログラムを表す。
type Program struct {
	ID          string
	Title       string
	Description string
	CoverImage  string
	CreatedAt   time.Time
}

// Video はプログラムに属する動画を表す。
type Video struct {
	ID          string
	ProgramID   string
	Title       string
	Description string
	YoutubeURL  string
	CreatedAt   time.Time
}

// Resource はプログラムに属する配布資料を表す。
type Resource struct {
	ID          string
	ProgramID   string
	Title       string
	Description string
	FileURL     string
	CreatedAt   time.Time
}

// Enrollment はユーザーのプログラム受講状況（user_progress）を表す。
// (user_id, program_id) は一意。
type Enrollment struct {
	ID              string
	UserID          string
	ProgramID       string
	TotalVideos     int
	WatchedVideos   int
	PercentComplete int
	CreatedAt       time.Time
}

// EnrollmentWithProgram はダッシュボード表示用にプログラム情報を結合した受講状況。
type EnrollmentWithProgram struct {
	Enrollment
	ProgramTitle string
}
