// Package guard decides whether a protected view may render for a session.
// It is a convenience gate; repositories enforce access themselves.
package guard

import (
	"slices"

	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/session"
)

type Decision int

const (
	Wait Decision = iota
	RedirectLogin
	RedirectDefault
	Render
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case RedirectLogin:
		return "redirect_login"
	case RedirectDefault:
		return "redirect_default"
	case Render:
		return "render"
	}
	return "unknown"
}

// Rule lists the roles allowed through. An empty rule admits any signed-in user.
type Rule struct {
	Roles []models.Role
}

func Any() Rule { return Rule{} }
func Roles(roles ...models.Role) Rule { return Rule{Roles: roles} }

func (r Rule) Allows(role models.Role) bool {
	return len(r.Roles) == 0 || slices.Contains(r.Roles, role)
}

func Decide(s session.Snapshot, r Rule) Decision {
	switch s.Status {
	case session.StatusLoading:
		return Wait
	case session.StatusAuthenticated:
		if s.Profile == nil {
			return RedirectLogin
		}
		if !r.Allows(s.Profile.Role) {
			return RedirectDefault
		}
		return Render
	case session.StatusAnonymous:
		return RedirectLogin
	}
	return RedirectLogin
}

const LoginPath = "/login"

// DefaultPath is where a signed-in user lands when a view is not for them.
func DefaultPath(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "/admin"
	case models.RoleTutor:
		return "/tutor"
	case models.RoleStudent:
		return "/student"
	}
	return LoginPath
}

// Target returns the path to navigate to for d, or "" when nothing changes.
func Target(d Decision, s session.Snapshot) string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectDefault:
		return DefaultPath(s.Role())
	case Wait, Render:
		return ""
	}
	return ""
}
