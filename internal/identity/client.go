// Package identity は外部IdP（GoTrue互換の認証API）との通信と、
// IdPセッションCookieの読み書きを提供する。
// IdPのCookie名やレスポンス形式を知っているのはこのパッケージのみ。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/mentorhub/internal/model"
)

// maxResponseBytes はIdPレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// Session はIdPが発行したセッション（アクセストークンとリフレッシュトークン）。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         model.Identity
}

// Profile はサインアップ時にIdPへ保存する追加属性。
type Profile struct {
	Name string
}

// Client はIdPに対する操作のインターフェース。
// 失敗時は*Errorを返す。ローカルでのリトライは行わない。
type Client interface {
	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp はアカウントを作成する。メール確認が必要な設定ではセッションは発行されない。
	SignUp(ctx context.Context, email, password string, profile Profile) (*model.Identity, error)
	// SignOut はアクセストークンに紐づくセッションを失効させる。
	SignOut(ctx context.Context, accessToken string) error
	// GetUser はアクセストークンからユーザーを取得する。
	GetUser(ctx context.Context, accessToken string) (*model.Identity, error)
	// Refresh はリフレッシュトークンでセッションを更新する。
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	// ListUsers は管理APIでユーザー一覧を取得する。pageは1始まり。
	ListUsers(ctx context.Context, page, perPage int) ([]model.Identity, error)
}

// BreakerConfig はIdP呼び出しのサーキットブレーカー設定。
type BreakerConfig struct {
	MaxRequests  uint32        // half-open状態で許可するリクエスト数
	Interval     time.Duration // closed状態でカウントをリセットする周期
	Timeout      time.Duration // open状態からhalf-openへ移行するまでの時間
	FailureRatio float64       // 遮断する失敗率
	MinRequests  uint32        // 失敗率を評価する最小リクエスト数
}

// DefaultBreakerConfig はデフォルトのブレーカー設定を返す。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Config はGoTrueClientの設定。
type Config struct {
	BaseURL        string // 例: https://project.example.com
	AnonKey        string // apikeyヘッダーに付与する公開キー
	ServiceRoleKey string // 管理API用キー（ListUsersでのみ使用）
	Breaker        BreakerConfig
	// OnBreakerStateChange はブレーカーの状態遷移時に呼ばれる（メトリクス連携用）。
	OnBreakerStateChange func(to gobreaker.State)
}

// response はブレーカー内で読み切ったHTTPレスポンス。
type response struct {
	status int
	body   []byte
}

// GoTrueClient はGoTrue互換REST APIのClient実装。
type GoTrueClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
	serviceKey string
	breaker    *gobreaker.CircuitBreaker[*response]
}

// NewGoTrueClient はGoTrueClientを生成する。
func NewGoTrueClient(httpClient *http.Client, cfg Config, logger *slog.Logger) *GoTrueClient {
	bc := cfg.Breaker
	settings := gobreaker.Settings{
		Name:        "identity",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if cfg.OnBreakerStateChange != nil {
				cfg.OnBreakerStateChange(to)
			}
		},
	}

	return &GoTrueClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		breaker:    gobreaker.NewCircuitBreaker[*response](settings),
	}
}

// userBody はGoTrueのユーザーオブジェクト。
type userBody struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

func (u userBody) identity() model.Identity {
	return model.Identity{ID: u.ID, Email: u.Email, Name: u.UserMetadata.Name}
}

// sessionBody はGoTrueのトークンレスポンス。
type sessionBody struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         userBody `json:"user"`
}

func (s sessionBody) session() *Session {
	expiresAt := time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	if s.ExpiresAt > 0 {
		expiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         s.User.identity(),
	}
}

// SignIn はパスワードグラントでサインインする。
func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var body sessionBody
	err := c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &body)
	if err != nil {
		return nil, err
	}
	return body.session(), nil
}

// SignUp はアカウントを作成する。
// プロバイダーの設定によりユーザーオブジェクト単体またはセッション付きで返るため、両方に対応する。
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, profile Profile) (*model.Identity, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"name": profile.Name},
	}
	var body struct {
		userBody
		User *userBody `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/v1/signup", "", payload, &body); err != nil {
		return nil, err
	}

	u := body.userBody
	if body.User != nil {
		u = *body.User
	}
	if u.ID == "" {
		return nil, &Error{Kind: KindUnknown, Status: http.StatusOK, Message: "signup response has no user id"}
	}
	identity := u.identity()
	if identity.Name == "" {
		identity.Name = profile.Name
	}
	return &identity, nil
}

// SignOut はセッションを失効させる。
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.call(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// GetUser はアクセストークンからユーザーを取得する。
func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*model.Identity, error) {
	var body userBody
	if err := c.call(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &body); err != nil {
		return nil, err
	}
	if body.ID == "" {
		return nil, &Error{Kind: KindInvalidSession, Status: http.StatusOK, Message: "user response has no id"}
	}
	identity := body.identity()
	return &identity, nil
}

// Refresh はリフレッシュトークングラントでセッションを更新する。
func (c *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var body sessionBody
	err := c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": refreshToken}, &body)
	if err != nil {
		return nil, err
	}
	return body.session(), nil
}

// ListUsers は管理APIでユーザー一覧を取得する。サービスロールキーが必要。
func (c *GoTrueClient) ListUsers(ctx context.Context, page, perPage int) ([]model.Identity, error) {
	if c.serviceKey == "" {
		return nil, errors.New("identity: service role key is not configured")
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var body struct {
		Users []userBody `json:"users"`
	}
	if err := c.call(ctx, http.MethodGet, "/auth/v1/admin/users?"+q.Encode(), c.serviceKey, nil, &body); err != nil {
		return nil, err
	}

	identities := make([]model.Identity, 0, len(body.Users))
	for _, u := range body.Users {
		identities = append(identities, u.identity())
	}
	return identities, nil
}

// call はIdP APIを呼び出し、2xxの場合はoutへデコードする。
// 通信障害と5xxのみをブレーカーの失敗として数える。
func (c *GoTrueClient) call(ctx context.Context, method, path, bearer string, in, out any) error {
	var reqBody []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode identity request: %w", err)
		}
		reqBody = b
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", c.anonKey)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		r := &response{status: httpResp.StatusCode, body: body}
		if r.status >= http.StatusInternalServerError {
			return r, fmt.Errorf("identity provider returned status %d", r.status)
		}
		return r, nil
	})

	if err != nil {
		if resp != nil {
			return classify(resp.status, decodeErrorBody(resp.body))
		}
		c.logger.WarnContext(ctx, "IdPへのリクエストに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &Error{Kind: KindUnavailable, Message: "identity provider is unreachable", Err: err}
	}

	if resp.status < 200 || resp.status >= 300 {
		return classify(resp.status, decodeErrorBody(resp.body))
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &Error{Kind: KindUnknown, Status: resp.status, Message: "malformed identity response", Err: err}
	}
	return nil
}

func decodeErrorBody(b []byte) errorBody {
	var body errorBody
	_ = json.Unmarshal(b, &body)
	return body
}

// compile-time interface check
var _ Client = (*GoTrueClient)(nil)
