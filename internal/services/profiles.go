package services

import (
	"context"
	"strings"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

type ProfilePatch struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=2,max=120"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=2048"`
	Bio       *string `json:"bio" validate:"omitempty,max=2000"`
	Phone     *string `json:"phone" validate:"omitempty,max=40"`
	Address   *string `json:"address" validate:"omitempty,max=500"`
}

type ProfileQuery struct {
	Query  string      `json:"q" validate:"max=120"`
	Role   models.Role `json:"role" validate:"omitempty,role"`
	Offset int         `json:"offset" validate:"gte=0"`
	Limit  int         `json:"limit" validate:"gte=0,lte=100"`
}

type ProfilePage struct {
	Profiles []models.Profile `json:"profiles"`
	Total    int              `json:"total"`
}

type ProfileService struct {
	d   Deps
	log *logger.Logger
}

func NewProfileService(d Deps) *ProfileService {
	d = d.withDefaults()
	return &ProfileService{d: d, log: d.Log.With("service", "ProfileService")}
}

func (s *ProfileService) Get(ctx context.Context, id string) (models.Profile, error) {
	return cache.Get(ctx, s.d.Cache, cache.Key(keyProfile, id), func(ctx context.Context) (models.Profile, error) {
		return s.d.profile(ctx, id)
	})
}

// Update patches a profile. Users edit their own; admins edit anyone's.
func (s *ProfileService) Update(ctx context.Context, v Viewer, id string, patch ProfilePatch) (models.Profile, error) {
	if v.ID != id && !v.IsAdmin() {
		return models.Profile{}, ErrForbidden("Not allowed")
	}
	if err := Validate(patch); err != nil {
		return models.Profile{}, err
	}
	values := remote.Values{}
	if patch.FullName != nil {
		values["full_name"] = strings.TrimSpace(*patch.FullName)
	}
	setOptional(values, "avatar_url", patch.AvatarURL)
	setOptional(values, "bio", patch.Bio)
	setOptional(values, "phone", patch.Phone)
	setOptional(values, "address", patch.Address)
	if len(values) == 0 {
		return s.Get(ctx, id)
	}
	values["updated_at"] = s.d.now()
	var out models.Profile
	if err := s.d.Store.Update(ctx, models.TableProfiles, []remote.Filter{remote.Eq("id", id)}, values, &out); err != nil {
		s.log.Error("update profile failed", "profile_id", id, "error", err)
		return models.Profile{}, notFoundAs(err, "Profile not found")
	}
	s.d.Cache.Invalidate(profileWriteKeys(id)...)
	return out, nil
}

// setOptional stores nil for a blank value so the column is cleared.
func setOptional(values remote.Values, column string, v *string) {
	if v == nil {
		return
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		values[column] = nil
		return
	}
	values[column] = trimmed
}

// Search pages through profiles matching q on name or email.
func (s *ProfileService) Search(ctx context.Context, v Viewer, q ProfileQuery) (ProfilePage, error) {
	if !v.IsAdmin() {
		return ProfilePage{}, ErrForbidden("Admin access required")
	}
	q.Query = strings.TrimSpace(q.Query)
	if err := Validate(q); err != nil {
		return ProfilePage{}, err
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	var filters []remote.Filter
	if q.Query != "" {
		pattern := "%" + escapeLike(q.Query) + "%"
		filters = append(filters, remote.Or(
			[]remote.Filter{remote.ILike("full_name", pattern)},
			[]remote.Filter{remote.ILike("email", pattern)},
		))
	}
	if q.Role != "" {
		filters = append(filters, remote.Eq("role", q.Role))
	}
	var page ProfilePage
	err := loader.All(ctx,
		func(ctx context.Context) error {
			return s.d.Store.Select(ctx, remote.Query{
				Table:   models.TableProfiles,
				Filters: filters,
				Order:   []remote.Order{remote.Asc("full_name"), remote.Asc("id")},
				Offset:  q.Offset,
				Limit:   q.Limit,
			}, &page.Profiles)
		},
		func(ctx context.Context) error {
			n, err := s.d.Store.Count(ctx, models.TableProfiles, filters...)
			page.Total = n
			return err
		},
	)
	if err != nil {
		s.log.Error("search profiles failed", "error", err)
		return ProfilePage{}, err
	}
	if page.Profiles == nil {
		page.Profiles = []models.Profile{}
	}
	return page, nil
}

// escapeLike makes % and _ in user input match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func (s *ProfileService) SetRole(ctx context.Context, v Viewer, id string, role models.Role) (models.Profile, error) {
	if !v.IsAdmin() {
		return models.Profile{}, ErrForbidden("Admin access required")
	}
	if !role.Valid() {
		return models.Profile{}, ErrBadRequest("invalid role")
	}
	if id == v.ID {
		return models.Profile{}, ErrBadRequest("Cannot change your own role")
	}
	var out models.Profile
	err := s.d.Store.Update(ctx, models.TableProfiles, []remote.Filter{remote.Eq("id", id)},
		remote.Values{"role": role, "updated_at": s.d.now()}, &out)
	if err != nil {
		s.log.Error("set role failed", "profile_id", id, "error", err)
		return models.Profile{}, notFoundAs(err, "Profile not found")
	}
	s.log.Info("role changed", "profile_id", id, "role", role, "by", v.ID)
	s.d.Cache.Invalidate(append(profileWriteKeys(id), keyStats)...)
	return out, nil
}
