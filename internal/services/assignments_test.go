package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/models"
)

func TestAssignmentUpdateIsOwnerOnly(t *testing.T) {
	due := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	g := newGradingFixture(t, &due)
	ctx := context.Background()
	other := g.user(t, "T2", "Tom Tutor", models.RoleTutor)
	assignments := NewAssignmentService(g.deps)

	before, err := assignments.Get(ctx, g.student, g.assignment.ID)
	require.NoError(t, err)
	require.NotNil(t, before.DueDate)

	_, err = assignments.Update(ctx, other, g.assignment.ID, AssignmentPatch{Title: ptr("Taken over")})
	requireStatus(t, err, http.StatusForbidden)
	_, err = assignments.Update(ctx, g.tutor, g.assignment.ID, AssignmentPatch{MaxScore: ptr(0)})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = assignments.Update(ctx, g.tutor, "missing", AssignmentPatch{Title: ptr("Nope")})
	requireStatus(t, err, http.StatusNotFound)

	updated, err := assignments.Update(ctx, g.tutor, g.assignment.ID, AssignmentPatch{
		Title:    ptr("  Quadratic equations "),
		ClearDue: true,
		MaxScore: ptr(20),
	})
	require.NoError(t, err)
	assert.Equal(t, "Quadratic equations", updated.Title)
	assert.Nil(t, updated.DueDate)
	assert.Equal(t, 20, updated.MaxScore)
	assert.Equal(t, "Algebra I", updated.CourseTitle)

	after, err := assignments.Get(ctx, g.student, g.assignment.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quadratic equations", after.Title)
	assert.Nil(t, after.DueDate)

	hidden, err := assignments.Update(ctx, g.tutor, g.assignment.ID, AssignmentPatch{Status: ptr(models.AssignmentDraft)})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDraft, hidden.Status)
	_, err = assignments.Get(ctx, g.student, g.assignment.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestAssignmentDeleteRemovesSubmissionsFirst(t *testing.T) {
	g := newGradingFixture(t, nil)
	ctx := context.Background()
	other := g.user(t, "T2", "Tom Tutor", models.RoleTutor)
	assignments := NewAssignmentService(g.deps)

	_, err := assignments.AttachFile(ctx, g.tutor, g.assignment.ID, models.FileMeta{FileName: "brief.pdf", FilePath: "T1/brief.pdf"})
	require.NoError(t, err)
	_, err = g.submissions.Submit(ctx, g.student, SubmitInput{
		AssignmentID: g.assignment.ID,
		Content:      "x = 4",
		Files:        []models.FileMeta{{FileName: "work.txt", FilePath: "S1/work.txt"}},
	})
	require.NoError(t, err)
	mine, err := g.submissions.Mine(ctx, g.student)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	requireStatus(t, assignments.Delete(ctx, other, g.assignment.ID), http.StatusForbidden)

	deps := g.deps
	deps.Store = faultyStore{Store: g.store, failDelete: map[string]bool{models.TableSubmissionFiles: true}}
	err = NewAssignmentService(deps).Delete(ctx, g.tutor, g.assignment.ID)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, 1, g.count(t, models.TableAssignments))
	assert.Equal(t, 1, g.count(t, models.TableSubmissions))

	require.NoError(t, assignments.Delete(ctx, g.tutor, g.assignment.ID))
	for _, table := range []string{
		models.TableAssignments,
		models.TableAssignmentFiles,
		models.TableSubmissions,
		models.TableSubmissionFiles,
	} {
		assert.Zero(t, g.count(t, table), table)
	}

	mine, err = g.submissions.Mine(ctx, g.student)
	require.NoError(t, err)
	assert.Empty(t, mine)
	_, err = assignments.Get(ctx, g.tutor, g.assignment.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestAssignmentFilesFollowVisibility(t *testing.T) {
	g := newGradingFixture(t, nil)
	ctx := context.Background()
	other := g.user(t, "T2", "Tom Tutor", models.RoleTutor)
	assignments := NewAssignmentService(g.deps)

	draft, err := assignments.Create(ctx, g.tutor, AssignmentInput{CourseID: g.course.ID, Title: "Inequalities"})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentDraft, draft.Status)

	_, err = assignments.AttachFile(ctx, other, draft.ID, models.FileMeta{FileName: "a.pdf", FilePath: "T2/a.pdf"})
	requireStatus(t, err, http.StatusForbidden)
	_, err = assignments.AttachFile(ctx, g.tutor, draft.ID, models.FileMeta{FileName: "a.pdf", FilePath: "S1/a.pdf"})
	requireStatus(t, err, http.StatusForbidden)
	_, err = assignments.AttachFile(ctx, g.tutor, draft.ID, models.FileMeta{FileName: "a.pdf", FilePath: "T1/../S1/a.pdf"})
	requireStatus(t, err, http.StatusForbidden)

	files, err := assignments.Files(ctx, g.tutor, draft.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	attached, err := assignments.AttachFile(ctx, g.tutor, draft.ID, models.FileMeta{FileName: "sheet.pdf", FilePath: "T1/sheet.pdf", FileType: "application/pdf", FileSize: 42})
	require.NoError(t, err)
	assert.Equal(t, g.tutor.ID, attached.UploadedBy)

	files, err = assignments.Files(ctx, g.tutor, draft.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "sheet.pdf", files[0].FileName)

	_, err = assignments.Files(ctx, g.student, draft.ID)
	requireStatus(t, err, http.StatusNotFound)
	_, err = assignments.Update(ctx, g.tutor, draft.ID, AssignmentPatch{Status: ptr(models.AssignmentPublished)})
	require.NoError(t, err)
	files, err = assignments.Files(ctx, g.student, draft.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "T1/sheet.pdf", files[0].FilePath)
}

func TestCourseRenameReachesJoinedViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, c := seedCourseTree(t, f)
	s1 := Viewer{ID: "s1", Role: models.RoleStudent}
	admin := f.user(t, "a1", "Ada Admin", models.RoleAdmin)
	courses := NewCourseService(f.deps)
	assignments := NewAssignmentService(f.deps)
	docs := NewDocumentService(f.deps)
	notifications := NewNotificationService(f.deps, nil, 30)

	list, err := assignments.List(ctx, s1, AssignmentFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Biology", list[0].CourseTitle)
	one, err := assignments.Get(ctx, s1, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Biology", one.CourseTitle)
	byCourse, err := docs.ListByCourse(ctx, s1, c.ID)
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, "Biology", byCourse[0].CourseTitle)
	items, err := notifications.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = courses.Update(ctx, t1, c.ID, CoursePatch{Title: ptr("Marine Biology")})
	require.NoError(t, err)
	_, err = courses.Create(ctx, t1, CourseInput{Title: "Ecology", Status: models.CourseActive})
	require.NoError(t, err)

	list, err = assignments.List(ctx, s1, AssignmentFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Marine Biology", list[0].CourseTitle)
	one, err = assignments.Get(ctx, s1, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Marine Biology", one.CourseTitle)
	byCourse, err = docs.ListByCourse(ctx, s1, c.ID)
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, "Marine Biology", byCourse[0].CourseTitle)
	items, err = notifications.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestProfileRenameReachesJoinedViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t1, c := seedCourseTree(t, f)
	s1 := Viewer{ID: "s1", Role: models.RoleStudent}
	profiles := NewProfileService(f.deps)
	assignments := NewAssignmentService(f.deps)
	docs := NewDocumentService(f.deps)
	submissions := NewSubmissionService(f.deps)

	list, err := assignments.List(ctx, s1, AssignmentFilter{CourseID: c.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tina Tutor", list[0].CreatorName)
	byCourse, err := docs.ListByCourse(ctx, s1, c.ID)
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, "Tina Tutor", byCourse[0].UploaderName)
	queue, err := submissions.NeedsGrading(ctx, t1)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "Sam Student", queue[0].StudentName)

	_, err = profiles.Update(ctx, t1, t1.ID, ProfilePatch{FullName: ptr("Tina Tutor-Smith")})
	require.NoError(t, err)
	_, err = profiles.Update(ctx, s1, s1.ID, ProfilePatch{FullName: ptr("Samuel Student")})
	require.NoError(t, err)

	list, err = assignments.List(ctx, s1, AssignmentFilter{CourseID: c.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tina Tutor-Smith", list[0].CreatorName)
	byCourse, err = docs.ListByCourse(ctx, s1, c.ID)
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, "Tina Tutor-Smith", byCourse[0].UploaderName)
	queue, err = submissions.NeedsGrading(ctx, t1)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "Samuel Student", queue[0].StudentName)
}
