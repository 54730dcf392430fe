package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/db"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/migrations"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

// Runs against a disposable database named by TEST_POSTGRES_DSN.
func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Apply(ctx, conn, migrations.Files(), nil))
	require.NoError(t, migrations.Apply(ctx, conn, migrations.Files(), nil))

	s := New(conn, logger.NewNop())
	now := time.Now().UTC().Truncate(time.Microsecond)
	tutorID, studentID, courseID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	t.Cleanup(func() {
		_ = s.Delete(ctx, models.TableEnrollments, remote.Eq("course_id", courseID))
		_ = s.Delete(ctx, models.TableCourses, remote.Eq("id", courseID))
		_ = s.Delete(ctx, models.TableAuthUsers, remote.In("id", []string{tutorID, studentID}))
	})

	for id, role := range map[string]models.Role{tutorID: models.RoleTutor, studentID: models.RoleStudent} {
		email := id + "@example.com"
		require.NoError(t, s.Insert(ctx, models.TableAuthUsers, remote.Values{
			"id": id, "email": email, "password_hash": "x", "created_at": now, "updated_at": now,
		}, nil))
		require.NoError(t, s.Insert(ctx, models.TableProfiles, remote.Values{
			"id": id, "full_name": "User " + string(role), "email": email, "role": role, "created_at": now, "updated_at": now,
		}, nil))
	}
	err = s.Insert(ctx, models.TableAuthUsers, remote.Values{
		"id": uuid.NewString(), "email": tutorID + "@example.com", "password_hash": "x",
	}, nil)
	assert.ErrorIs(t, err, remote.ErrDuplicate)

	var course models.Course
	require.NoError(t, s.Insert(ctx, models.TableCourses, remote.Values{
		"id": courseID, "title": "Algebra I", "instructor_id": tutorID, "status": models.CourseActive,
		"created_at": now, "updated_at": now,
	}, &course))
	assert.Equal(t, models.CourseActive, course.Status)

	enrollment := remote.Values{"id": uuid.NewString(), "course_id": courseID, "student_id": studentID, "enrolled_at": now}
	require.NoError(t, s.Insert(ctx, models.TableEnrollments, enrollment, nil))
	enrollment["id"] = uuid.NewString()
	assert.ErrorIs(t, s.Insert(ctx, models.TableEnrollments, enrollment, nil), remote.ErrDuplicate)

	var profiles []models.Profile
	require.NoError(t, s.Select(ctx, remote.Query{
		Table:   models.TableProfiles,
		Filters: []remote.Filter{remote.In("id", []string{tutorID, studentID}), remote.ILike("full_name", "%TUTOR%")},
	}, &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, tutorID, profiles[0].ID)

	var updated []models.Enrollment
	require.NoError(t, s.Update(ctx, models.TableEnrollments, []remote.Filter{remote.Eq("course_id", courseID)},
		remote.Values{"progress": 40}, &updated))
	require.Len(t, updated, 1)
	assert.Equal(t, 40, updated[0].Progress)

	var missing models.Course
	err = s.Update(ctx, models.TableCourses, []remote.Filter{remote.Eq("id", uuid.NewString())}, remote.Values{"title": "x"}, &missing)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	n, err := s.Count(ctx, models.TableEnrollments, remote.Eq("course_id", courseID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
