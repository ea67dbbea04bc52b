package identity

import (
	"context"

	"github.com/hitoshi/mentorhub/internal/model"
)

type verifiedUserKey struct{}

type verifiedUser struct {
	accessToken string
	user        model.Identity
}

// ContextWithVerifiedUser はIdPで確認済みのアカウントをアクセストークンと紐付けてcontextに格納する。
// 同じリクエスト内でGetUserを重複して呼ばないために使う。
func ContextWithVerifiedUser(ctx context.Context, accessToken string, user model.Identity) context.Context {
	return context.WithValue(ctx, verifiedUserKey{}, verifiedUser{accessToken: accessToken, user: user})
}

// VerifiedUserFromContext はaccessTokenに対して確認済みのアカウントを返す。
// 格納時とトークンが異なる場合は見つからなかったものとして扱う。
func VerifiedUserFromContext(ctx context.Context, accessToken string) (model.Identity, bool) {
	v, ok := ctx.Value(verifiedUserKey{}).(verifiedUser)
	if !ok || accessToken == "" || v.accessToken != accessToken || v.user.ID == "" {
		return model.Identity{}, false
	}
	return v.user, true
}
