package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campusevent/internal/access"
	"github.com/hitoshi/campusevent/internal/auth"
	"github.com/hitoshi/campusevent/internal/event"
	"github.com/hitoshi/campusevent/internal/feedback"
	"github.com/hitoshi/campusevent/internal/registration"
	"github.com/hitoshi/campusevent/internal/stats"
	"github.com/hitoshi/campusevent/internal/user"
)

// EventOwnerLookup はイベントIDから主催者のメールアドレスを引く。
type EventOwnerLookup interface {
	OwnerEmail(ctx context.Context, eventID string) (string, error)
}

// EventOwnerResolver はURLパラメータ{id}のイベント主催者を所有者とするaccess.OwnerResolverを返す。
// UUIDとして解釈できない{id}は存在しないイベントとして扱う。
func EventOwnerResolver(lookup EventOwnerLookup) access.OwnerResolver {
	return func(r *http.Request) (string, error) {
		id := chi.URLParam(r, "id")
		if !validEventID(id) {
			return "", access.ErrResourceNotFound
		}
		return lookup.OwnerEmail(r.Context(), id)
	}
}

// --- compile-time interface checks ---

var (
	_ AuthServiceInterface         = (*auth.Service)(nil)
	_ UserServiceInterface         = (*user.Service)(nil)
	_ EventServiceInterface        = (*event.Service)(nil)
	_ EventOwnerLookup             = (*event.Service)(nil)
	_ RegistrationServiceInterface = (*registration.Service)(nil)
	_ FeedbackServiceInterface     = (*feedback.Service)(nil)
	_ StatsServiceInterface        = (*stats.Service)(nil)
)
