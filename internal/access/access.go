// Package access はルートごとのアクセス可否を判定する。
//
// 判定はリクエスト主体（Requester）、ルートが要求するロール集合、
// および任意の所有者制約のみから決まり、I/Oを一切行わない。
package access

import "github.com/hitoshi/campusevent/internal/model"

// Requester は認証正規化後のリクエスト主体を表す。
// 有効なトークンを持たないリクエストはRoleGuestのRequesterになる。
type Requester struct {
	SubjectID string
	Email     string
	Role      model.Role
}

// Guest はゲストのRequesterを返す。
func Guest() Requester {
	return Requester{Role: model.RoleGuest}
}

// FromAssertion は検証済みのトークン主張からRequesterを生成する。
func FromAssertion(a *model.SessionAssertion) Requester {
	if a == nil {
		return Guest()
	}
	return Requester{
		SubjectID: a.SubjectID,
		Email:     a.Email,
		Role:      a.Role,
	}
}

// IsGuest はゲストかどうかを返す。
func (r Requester) IsGuest() bool {
	return r.Role == model.RoleGuest
}

// Ownership は所有者制約を表す。
// OwnerEmailはリソースの所有者として記録されたメールアドレス。
// Bypassに含まれるロールは所有者でなくても許可される。
type Ownership struct {
	OwnerEmail string
	Bypass     model.RoleSet
}

// Kind は判定結果の種別。
type Kind int

const (
	// Allow は操作が許可されたことを表す。
	Allow Kind = iota
	// AuthenticationRequired はゲストが認証必須のルートにアクセスしたことを表す。
	AuthenticationRequired
	// InsufficientRole は認証済みだがロールが要求を満たさないことを表す。
	InsufficientRole
	// OwnershipViolation はロールは満たすがリソースの所有者でないことを表す。
	OwnershipViolation
)

// String はメトリクスやログのラベルに使う名前を返す。
func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case AuthenticationRequired:
		return "authentication_required"
	case InsufficientRole:
		return "insufficient_role"
	case OwnershipViolation:
		return "ownership_violation"
	default:
		return "unknown"
	}
}

// Decision は判定結果。
type Decision struct {
	Kind Kind
}

// Allowed は許可されたかを返す。
func (d Decision) Allowed() bool {
	return d.Kind == Allow
}

// String は判定種別の名前を返す。
func (d Decision) String() string {
	return d.Kind.String()
}

// Evaluate はリクエスト主体が操作を行えるかを判定する。
//
// 判定は次の順で行い、最初に該当した規則で確定する。
//  1. ゲストは required にguestが含まれる場合のみ許可、それ以外はAuthenticationRequired
//  2. ロールが required に含まれなければInsufficientRole
//  3. ownership が指定されている場合、Bypassのロールか所有者本人のみ許可、それ以外はOwnershipViolation
//  4. 上記以外は許可
//
// ロールの継承はない。adminであってもrequiredに含まれなければ拒否される。
func Evaluate(requester Requester, required model.RoleSet, ownership *Ownership) Decision {
	if requester.IsGuest() {
		if required.Contains(model.RoleGuest) {
			return Decision{Kind: Allow}
		}
		return Decision{Kind: AuthenticationRequired}
	}

	if !required.Contains(requester.Role) {
		return Decision{Kind: InsufficientRole}
	}

	if ownership != nil {
		if ownership.Bypass.Contains(requester.Role) {
			return Decision{Kind: Allow}
		}
		if requester.Email == ownership.OwnerEmail {
			return Decision{Kind: Allow}
		}
		return Decision{Kind: OwnershipViolation}
	}

	return Decision{Kind: Allow}
}
