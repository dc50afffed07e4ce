package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, access, validation, event, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationRequired   = "AUTHENTICATION_REQUIRED"
	ErrCodeInsufficientRole         = "INSUFFICIENT_ROLE"
	ErrCodeOwnershipViolation       = "OWNERSHIP_VIOLATION"
	ErrCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	ErrCodeInvalidRole              = "INVALID_ROLE"
	ErrCodeValidation               = "VALIDATION_ERROR"
	ErrCodeEmailAlreadyRegistered   = "EMAIL_ALREADY_REGISTERED"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
	ErrCodeEventNotFound            = "EVENT_NOT_FOUND"
	ErrCodeEventStarted             = "EVENT_ALREADY_STARTED"
	ErrCodeEventNotStarted          = "EVENT_NOT_STARTED"
	ErrCodeEventFull                = "EVENT_FULL"
	ErrCodeAlreadyRegistered        = "ALREADY_REGISTERED"
	ErrCodeRegistrationNotFound     = "REGISTRATION_NOT_FOUND"
	ErrCodeNotRegistered            = "NOT_REGISTERED"
	ErrCodeFeedbackAlreadySubmitted = "FEEDBACK_ALREADY_SUBMITTED"
	ErrCodeInvalidURL               = "INVALID_URL"
	ErrCodeSSRFBlocked              = "SSRF_BLOCKED"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewAuthenticationRequiredError は未認証のリクエスト主体に返すエラーを生成する。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "この操作にはログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInsufficientRoleError はロールが要求を満たさない場合のエラーを生成する。
func NewInsufficientRoleError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientRole,
		Message:  "この操作を行う権限がありません。",
		Category: "access",
		Action:   "必要な権限を持つアカウントでログインしてください。",
	}
}

// NewOwnershipViolationError は他人のリソースを操作しようとした場合のエラーを生成する。
func NewOwnershipViolationError() *APIError {
	return &APIError{
		Code:     ErrCodeOwnershipViolation,
		Message:  "このイベントを管理する権限がありません。",
		Category: "access",
		Action:   "イベントを作成した主催者のアカウントで操作してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidRoleError は登録できないロールが指定された場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %s", role),
		Category: "validation",
		Action:   "ロールには student または organizer を指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "event",
		Action:   "イベントIDを確認してください。",
	}
}

// NewEventStartedError は開始済みイベントへの参加登録エラーを生成する。
func NewEventStartedError() *APIError {
	return &APIError{
		Code:     ErrCodeEventStarted,
		Message:  "このイベントは既に開始しています。",
		Category: "event",
		Action:   "開催予定のイベントを選択してください。",
	}
}

// NewEventNotStartedError は開始前イベントへのフィードバック投稿エラーを生成する。
func NewEventNotStartedError() *APIError {
	return &APIError{
		Code:     ErrCodeEventNotStarted,
		Message:  "イベント開始前はフィードバックを投稿できません。",
		Category: "event",
		Action:   "イベント開始後に再度お試しください。",
	}
}

// NewEventFullError は定員超過エラーを生成する。
func NewEventFullError() *APIError {
	return &APIError{
		Code:     ErrCodeEventFull,
		Message:  "このイベントは定員に達しています。",
		Category: "event",
		Action:   "他のイベントを選択してください。",
	}
}

// NewAlreadyRegisteredError は参加登録の重複エラーを生成する。
func NewAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  "このイベントには既に参加登録しています。",
		Category: "event",
		Action:   "参加登録一覧を確認してください。",
	}
}

// NewRegistrationNotFoundError は参加登録が見つからない場合のエラーを生成する。
func NewRegistrationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationNotFound,
		Message:  "このイベントへの参加登録が見つかりません。",
		Category: "event",
		Action:   "参加登録一覧を確認してください。",
	}
}

// NewNotRegisteredError は未登録イベントへのフィードバック投稿エラーを生成する。
func NewNotRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeNotRegistered,
		Message:  "参加登録していないイベントにはフィードバックを投稿できません。",
		Category: "event",
		Action:   "参加登録したイベントを選択してください。",
	}
}

// NewFeedbackAlreadySubmittedError はフィードバック重複エラーを生成する。
func NewFeedbackAlreadySubmittedError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedbackAlreadySubmitted,
		Message:  "このイベントには既にフィードバックを投稿しています。",
		Category: "event",
		Action:   "フィードバックは1イベントにつき1回のみ投稿できます。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を設定してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているURLを設定してください。ローカルネットワークやプライベートIPへの送信は許可されていません。",
	}
}
