package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/mentorhub/internal/model"
)

// FallbackCookieName はフォールバックセッショントークンを保持するCookie名。
const FallbackCookieName = "custom_session"

// DefaultFallbackTTL はフォールバックセッションのデフォルト有効期間。
const DefaultFallbackTTL = 30 * time.Minute

// ErrInvalidToken はトークンが検証できないことを表す。
// 署名不一致、期限切れ、スキーマ不一致などの理由は区別しない。
var ErrInvalidToken = errors.New("invalid session token")

// トークンのクレーム名。
const (
	claimUserID   = "userId"
	claimRole     = "role"
	claimIssuedAt = "iat"
	claimExpires  = "exp"
)

// allowedClaims はトークンに含めてよいクレームの集合。これ以外のキーを含むトークンは無効。
var allowedClaims = map[string]bool{
	claimUserID:   true,
	claimRole:     true,
	claimIssuedAt: true,
	claimExpires:  true,
}

// SessionPayload はフォールバックセッショントークンの内容。
type SessionPayload struct {
	UserID    string
	Role      model.Role // 任意。認可判定には使わず、常にDBのロールを参照する
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager はフォールバックセッショントークンの署名と検証を行う。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。ttlが0以下の場合はDefaultFallbackTTLを使う。
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultFallbackTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返す。
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Sign はユーザーIDとロールからトークンを発行する。
// iatとexpは秒単位に切り捨てて署名するため、Verifyの結果と一致する。
func (m *TokenManager) Sign(userID string, role model.Role) (string, *SessionPayload, error) {
	if userID == "" {
		return "", nil, errors.New("userId is required")
	}
	issuedAt := m.now().Truncate(time.Second)
	payload := &SessionPayload{
		UserID:    userID,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(m.ttl),
	}

	claims := jwt.MapClaims{
		claimUserID:   payload.UserID,
		claimIssuedAt: payload.IssuedAt.Unix(),
		claimExpires:  payload.ExpiresAt.Unix(),
	}
	if role != "" {
		claims[claimRole] = string(role)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, payload, nil
}

// Verify はトークンを検証し、内容を返す。
// 失敗時は理由によらず常にErrInvalidTokenを返し、部分的なペイロードは返さない。
func (m *TokenManager) Verify(tokenString string) (*SessionPayload, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	for key := range claims {
		if !allowedClaims[key] {
			return nil, ErrInvalidToken
		}
	}

	userID, ok := claims[claimUserID].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	var role model.Role
	if raw, present := claims[claimRole]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, ErrInvalidToken
		}
		role = model.Role(s)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &SessionPayload{
		UserID:    userID,
		Role:      role,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
	}, nil
}
