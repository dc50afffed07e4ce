// Package model はドメインモデルを定義する。
package model

import "time"

// User はusersテーブルに保存される利用者のIdentityを表す。
// StudentIDはRoleがstudentの場合にのみ値を持つ。
type User struct {
	ID           string
	Name         string
	Email        string // 一意。保存時の大文字小文字をそのまま比較に使う
	PasswordHash string
	Role         Role
	StudentID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionAssertion は署名付きトークンから復元された主張を表す。
// 永続化されず、有効性は署名と有効期限のみで決まる。
type SessionAssertion struct {
	SubjectID string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
