package access

import (
	"errors"
	"net/http"

	"github.com/hitoshi/campusevent/internal/model"
)

// ErrResourceNotFound はOwnerResolverが対象リソースを見つけられなかったことを表す。
var ErrResourceNotFound = errors.New("access: resource not found")

// OwnerResolver はリクエストが対象とするリソースの所有者メールアドレスを返す。
// リソースが存在しない場合はErrResourceNotFoundを返す。
type OwnerResolver func(r *http.Request) (string, error)

// Policy はルート登録時に宣言するアクセス方針。
type Policy struct {
	// Required はルートを利用できるロール集合。
	Required model.RoleSet
	// Owner が設定されている場合、所有者制約を課す。
	Owner OwnerResolver
	// Bypass は所有者制約を免除されるロール集合。
	Bypass model.RoleSet
}

// Open はゲストを含む全ロールに開かれたPolicyを返す。
func Open() Policy {
	return Policy{Required: model.MustRoleSet(
		model.RoleGuest, model.RoleStudent, model.RoleOrganizer, model.RoleAdmin,
	)}
}

// Roles は指定ロールのみを許可するPolicyを返す。
func Roles(roles ...model.Role) Policy {
	return Policy{Required: model.MustRoleSet(roles...)}
}

// OwnedBy は所有者制約を付加したPolicyを返す。
func (p Policy) OwnedBy(owner OwnerResolver, bypass ...model.Role) Policy {
	p.Owner = owner
	p.Bypass = model.MustRoleSet(bypass...)
	return p
}
