package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/campusevent/internal/model"
)

// TokenTTL はアクセストークンの有効期間。発行時刻から固定で24時間。
const TokenTTL = 24 * time.Hour

const tokenIssuer = "campusevent"

// DecodeErrorKind はトークン検証失敗の種別。
type DecodeErrorKind int

const (
	// Malformed はトークンの形式やクレームが不正であることを表す。
	Malformed DecodeErrorKind = iota + 1
	// SignatureInvalid は署名または署名アルゴリズムが不正であることを表す。
	SignatureInvalid
	// Expired は有効期限切れを表す。
	Expired
)

// String は種別名を返す。
func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case SignatureInvalid:
		return "signature_invalid"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// DecodeError はDecodeの失敗を表す。errors.IsでErrMalformed等と比較できる。
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

// errors.Is 比較用の番兵。
var (
	ErrMalformed        = &DecodeError{Kind: Malformed}
	ErrSignatureInvalid = &DecodeError{Kind: SignatureInvalid}
	ErrExpired          = &DecodeError{Kind: Expired}
)

// Error はerrorインターフェースを実装する。
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("token %s", e.Kind)
}

// Unwrap は元のエラーを返す。
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is は種別が一致するDecodeErrorと等価とみなす。
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// tokenClaims はアクセストークンに載せるクレーム。
type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenOption はTokenCodecの生成オプション。
type TokenOption func(*TokenCodec)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// TokenCodec はHS256署名付きアクセストークンの発行と検証を行う。
// 署名鍵は生成時に注入され、以降は読み取り専用。I/Oは行わない。
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec はTokenCodecを生成する。secretが空の場合はエラーを返す。
func NewTokenCodec(secret []byte, opts ...TokenOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue は利用者のIdentityからアクセストークンを発行する。
// 有効期限は発行時刻（秒精度）から TokenTTL 後。
func (c *TokenCodec) Issue(user *model.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if !user.Role.IsStored() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for role %q", user.Role)
	}

	// NumericDateは秒精度のため、先に切り捨てて返却値と一致させる
	issuedAt := c.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(TokenTTL)

	claims := tokenClaims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode はトークンを検証し、SessionAssertionを復元する。
// 失敗時は *DecodeError を返す。
func (c *TokenCodec) Decode(token string) (*model.SessionAssertion, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &DecodeError{Kind: Malformed, Err: errors.New("empty token")}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &tokenClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	role := model.Role(claims.Role)
	if !role.IsStored() {
		return nil, &DecodeError{Kind: Malformed, Err: fmt.Errorf("unknown role claim %q", claims.Role)}
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, &DecodeError{Kind: Malformed, Err: errors.New("subject or email claim missing")}
	}

	assertion := &model.SessionAssertion{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		assertion.IssuedAt = claims.IssuedAt.Time
	}
	return assertion, nil
}

// classifyParseError はjwtライブラリのエラーを失敗種別に分類する。
func classifyParseError(err error) *DecodeError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &DecodeError{Kind: Expired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return &DecodeError{Kind: SignatureInvalid, Err: err}
	default:
		return &DecodeError{Kind: Malformed, Err: err}
	}
}
