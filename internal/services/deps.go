package services

import (
	"context"
	"time"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/storage"
)

const (
	UnknownName = "Unknown"
	UnknownRef  = "N/A"
)

// Deps are the collaborators every repository shares.
type Deps struct {
	Store   remote.Store
	Cache   *cache.Cache
	Log     *logger.Logger
	Events  realtime.Bus
	Objects storage.ObjectStore
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Cache == nil {
		d.Cache = cache.New(cache.Options{Permanent: IsPermanent}, d.Log)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) now() time.Time {
	return d.Now().UTC()
}

// Viewer is the authenticated caller on whose behalf a repository reads.
type Viewer struct {
	ID   string
	Role models.Role
}

func (v Viewer) IsAdmin() bool   { return v.Role == models.RoleAdmin }
func (v Viewer) IsTutor() bool   { return v.Role == models.RoleTutor }
func (v Viewer) IsStudent() bool { return v.Role == models.RoleStudent }

// scope is the cache segment for role-scoped views.
func (v Viewer) scope() string {
	if v.IsAdmin() {
		return string(models.RoleAdmin)
	}
	return string(v.Role) + ":" + v.ID
}

func (d Deps) publish(ctx context.Context, ev realtime.Event) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Publish(ctx, ev); err != nil {
		d.Log.Warn("publish event failed", "type", ev.Type, "error", err)
	}
}

// profileNames resolves ids to full names. Failed lookups are logged and left
// out of the map so callers render UnknownName.
func (d Deps) profileNames(ctx context.Context, ids []string) map[string]string {
	rows, err := loader.Load(ctx, ids, func(p models.Profile) string { return p.ID },
		func(ctx context.Context, batch []string) ([]models.Profile, error) {
			var out []models.Profile
			err := d.Store.Select(ctx, remote.Query{
				Table:   models.TableProfiles,
				Columns: []string{"id", "full_name", "email", "role"},
				Filters: []remote.Filter{remote.In("id", batch)},
			}, &out)
			return out, err
		})
	if err != nil {
		d.Log.Warn("profile lookup degraded", "error", err)
	}
	names := make(map[string]string, len(rows))
	for id, p := range rows {
		names[id] = p.FullName
	}
	return names
}

func (d Deps) courseTitles(ctx context.Context, ids []string) map[string]string {
	rows, err := loader.Load(ctx, ids, func(c models.Course) string { return c.ID },
		func(ctx context.Context, batch []string) ([]models.Course, error) {
			var out []models.Course
			err := d.Store.Select(ctx, remote.Query{
				Table:   models.TableCourses,
				Columns: []string{"id", "title"},
				Filters: []remote.Filter{remote.In("id", batch)},
			}, &out)
			return out, err
		})
	if err != nil {
		d.Log.Warn("course lookup degraded", "error", err)
	}
	titles := make(map[string]string, len(rows))
	for id, c := range rows {
		titles[id] = c.Title
	}
	return titles
}

func nameOr(names map[string]string, id, fallback string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fallback
}

func (d Deps) course(ctx context.Context, id string) (models.Course, error) {
	var rows []models.Course
	err := d.Store.Select(ctx, remote.Query{
		Table:   models.TableCourses,
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return models.Course{}, err
	}
	if len(rows) == 0 {
		return models.Course{}, ErrNotFound("Course not found")
	}
	return rows[0], nil
}

func (d Deps) assignment(ctx context.Context, id string) (models.Assignment, error) {
	var rows []models.Assignment
	err := d.Store.Select(ctx, remote.Query{
		Table:   models.TableAssignments,
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return models.Assignment{}, err
	}
	if len(rows) == 0 {
		return models.Assignment{}, ErrNotFound("Assignment not found")
	}
	return rows[0], nil
}

func (d Deps) profile(ctx context.Context, id string) (models.Profile, error) {
	var rows []models.Profile
	err := d.Store.Select(ctx, remote.Query{
		Table:   models.TableProfiles,
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return models.Profile{}, err
	}
	if len(rows) == 0 {
		return models.Profile{}, ErrNotFound("Profile not found")
	}
	return rows[0], nil
}

// ownsCourse reports whether v may manage course c.
func ownsCourse(v Viewer, c models.Course) bool {
	return v.IsAdmin() || (v.IsTutor() && c.InstructorID == v.ID)
}

// enrolledCourseIDs returns the courses a student has not dropped.
func (d Deps) enrolledCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	var rows []models.Enrollment
	err := d.Store.Select(ctx, remote.Query{
		Table:   models.TableEnrollments,
		Columns: []string{"id", "course_id", "student_id", "status"},
		Filters: []remote.Filter{
			remote.Eq("student_id", studentID),
			remote.Neq("status", models.EnrollmentDropped),
		},
	}, &rows)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.CourseID)
	}
	return ids, nil
}
