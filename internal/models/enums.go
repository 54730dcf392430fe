package models

import "strings"

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return true
	}
	return false
}

func (r Role) Label() string {
	switch r {
	case RoleStudent:
		return "Student"
	case RoleTutor:
		return "Tutor"
	case RoleAdmin:
		return "Administrator"
	}
	return "Unknown"
}

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CourseActive    CourseStatus = "active"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

// VisibleCourseStatuses are the statuses a student may see.
var VisibleCourseStatuses = []CourseStatus{CourseActive, CoursePublished}

func (s CourseStatus) Valid() bool {
	switch s {
	case CourseDraft, CourseActive, CoursePublished, CourseArchived:
		return true
	}
	return false
}

func (s CourseStatus) Visible() bool {
	switch s {
	case CourseActive, CoursePublished:
		return true
	case CourseDraft, CourseArchived:
		return false
	}
	return false
}

func (s CourseStatus) Label() string {
	switch s {
	case CourseDraft:
		return "Draft"
	case CourseActive:
		return "Active"
	case CoursePublished:
		return "Published"
	case CourseArchived:
		return "Archived"
	}
	return "Unknown"
}

func (s CourseStatus) Color() string {
	switch s {
	case CourseDraft:
		return "gray"
	case CourseActive, CoursePublished:
		return "green"
	case CourseArchived:
		return "amber"
	}
	return "gray"
}

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

func (s EnrollmentStatus) Label() string {
	switch s {
	case EnrollmentEnrolled:
		return "Enrolled"
	case EnrollmentCompleted:
		return "Completed"
	case EnrollmentDropped:
		return "Dropped"
	}
	return "Unknown"
}

type AssignmentStatus string

const (
	AssignmentDraft     AssignmentStatus = "draft"
	AssignmentPublished AssignmentStatus = "published"
	AssignmentArchived  AssignmentStatus = "archived"
)

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentDraft, AssignmentPublished, AssignmentArchived:
		return true
	}
	return false
}

func (s AssignmentStatus) Label() string {
	switch s {
	case AssignmentDraft:
		return "Draft"
	case AssignmentPublished:
		return "Published"
	case AssignmentArchived:
		return "Archived"
	}
	return "Unknown"
}

func (s AssignmentStatus) Color() string {
	switch s {
	case AssignmentDraft:
		return "gray"
	case AssignmentPublished:
		return "green"
	case AssignmentArchived:
		return "amber"
	}
	return "gray"
}

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionLate      SubmissionStatus = "late"
)

// NeedsGrading reports whether a tutor still has to grade the submission.
func (s SubmissionStatus) NeedsGrading() bool {
	switch s {
	case SubmissionSubmitted, SubmissionLate:
		return true
	case SubmissionPending, SubmissionGraded:
		return false
	}
	return false
}

func (s SubmissionStatus) Label() string {
	switch s {
	case SubmissionPending:
		return "Pending"
	case SubmissionSubmitted:
		return "Submitted"
	case SubmissionGraded:
		return "Graded"
	case SubmissionLate:
		return "Late"
	}
	return "Unknown"
}

func (s SubmissionStatus) Color() string {
	switch s {
	case SubmissionPending:
		return "gray"
	case SubmissionSubmitted:
		return "blue"
	case SubmissionGraded:
		return "green"
	case SubmissionLate:
		return "red"
	}
	return "gray"
}

type NotificationKind string

const (
	NotificationSubmission NotificationKind = "submission"
	NotificationGrade      NotificationKind = "grade"
	NotificationAssignment NotificationKind = "assignment"
	NotificationDocument   NotificationKind = "document"
	NotificationCourse     NotificationKind = "course"
)

func (k NotificationKind) Label() string {
	switch k {
	case NotificationSubmission:
		return "New submission"
	case NotificationGrade:
		return "Assignment graded"
	case NotificationAssignment:
		return "New assignment"
	case NotificationDocument:
		return "New document"
	case NotificationCourse:
		return "New course"
	}
	return "Notification"
}
