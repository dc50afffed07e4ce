package model

import (
	"fmt"
	"sort"
	"strings"
)

// Role はリクエスト主体のロールを表す。
// 値は閉じた列挙であり、ParseRole / NewRoleSet 以外の経路で未知の値を作らないこと。
type Role string

const (
	// RoleGuest は有効な認証情報を持たないリクエスト主体。
	// usersテーブルに保存されることはなく、リクエストごとに合成される。
	RoleGuest Role = "guest"
	// RoleStudent はイベントに参加登録しフィードバックを投稿する学生。
	RoleStudent Role = "student"
	// RoleOrganizer はイベントを作成・管理する主催者。
	RoleOrganizer Role = "organizer"
	// RoleAdmin は統計を閲覧し、全イベントを管理できる管理者。
	RoleAdmin Role = "admin"
)

// knownRoles はロールの閉じた列挙。
var knownRoles = map[Role]struct{}{
	RoleGuest:     {},
	RoleStudent:   {},
	RoleOrganizer: {},
	RoleAdmin:     {},
}

// String はロール名を返す。
func (r Role) String() string {
	return string(r)
}

// IsKnown はロールが列挙に含まれるかを返す。
func (r Role) IsKnown() bool {
	_, ok := knownRoles[r]
	return ok
}

// IsStored はusersテーブルに保存可能なロールかを返す。guestは保存されない。
func (r Role) IsStored() bool {
	return r.IsKnown() && r != RoleGuest
}

// ParseRole は文字列を保存可能なロールに変換する。
// guestおよび未知の値はエラーになる。
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.IsStored() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// RoleSet はルートが要求するロールの集合。
// ゼロ値は空集合であり、どのロールも含まない。
type RoleSet struct {
	roles map[Role]struct{}
}

// NewRoleSet は列挙に含まれるロールのみからなるRoleSetを生成する。
// 未知のロールが含まれる場合はエラーを返す。
func NewRoleSet(roles ...Role) (RoleSet, error) {
	set := RoleSet{roles: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		if !r.IsKnown() {
			return RoleSet{}, fmt.Errorf("unknown role in role set: %q", r)
		}
		set.roles[r] = struct{}{}
	}
	return set, nil
}

// MustRoleSet はNewRoleSetと同じだが、未知のロールでpanicする。
// ルート登録時に使用し、タイプミスを起動時に検出する。
func MustRoleSet(roles ...Role) RoleSet {
	set, err := NewRoleSet(roles...)
	if err != nil {
		panic(err)
	}
	return set
}

// Contains はロールが集合に含まれるかを返す。
func (s RoleSet) Contains(r Role) bool {
	_, ok := s.roles[r]
	return ok
}

// Len は集合の要素数を返す。
func (s RoleSet) Len() int {
	return len(s.roles)
}

// Roles は集合の要素をソート済みで返す。
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// String は "admin,organizer" のような表現を返す。ログ用。
func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}
