package models

import "time"

// Table names in the remote store.
const (
	TableAuthUsers       = "auth_users"
	TableProfiles        = "profiles"
	TableCourses         = "courses"
	TableEnrollments     = "enrollments"
	TableAssignments     = "assignments"
	TableSubmissions     = "submissions"
	TableSubmissionFiles = "submission_files"
	TableAssignmentFiles = "assignment_files"
	TableCourseDocuments = "course_documents"
	TableMessages        = "messages"
)

type Credential struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"password_hash"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type Profile struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Role      Role      `db:"role" json:"role"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url"`
	Bio       *string   `db:"bio" json:"bio"`
	Phone     *string   `db:"phone" json:"phone"`
	Address   *string   `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Course struct {
	ID            string       `db:"id" json:"id"`
	Title         string       `db:"title" json:"title"`
	Description   string       `db:"description" json:"description"`
	InstructorID  string       `db:"instructor_id" json:"instructor_id"`
	Status        CourseStatus `db:"status" json:"status"`
	StudentsCount int          `db:"students_count" json:"students_count"`
	LessonsCount  int          `db:"lessons_count" json:"lessons_count"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Progress   int              `db:"progress" json:"progress"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	LastActive *time.Time       `db:"last_active" json:"last_active"`
}

type Assignment struct {
	ID          string           `db:"id" json:"id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	CreatedBy   string           `db:"created_by" json:"created_by"`
	Title       string           `db:"title" json:"title"`
	Description string           `db:"description" json:"description"`
	DueDate     *time.Time       `db:"due_date" json:"due_date"`
	MaxScore    int              `db:"max_score" json:"max_score"`
	Status      AssignmentStatus `db:"assignment_status" json:"assignment_status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Content      string           `db:"content" json:"content"`
	Status       SubmissionStatus `db:"status" json:"status"`
	Grade        *float64         `db:"grade" json:"grade"`
	Feedback     *string          `db:"feedback" json:"feedback"`
	SubmittedAt  time.Time        `db:"submitted_at" json:"submitted_at"`
	GradedAt     *time.Time       `db:"graded_at" json:"graded_at"`
}

// FileMeta describes an uploaded object; the bytes live in object storage.
type FileMeta struct {
	FileName string `json:"file_name" validate:"required,max=255"`
	FilePath string `json:"file_path" validate:"required,max=1024"`
	FileType string `json:"file_type" validate:"max=255"`
	FileSize int64  `json:"file_size" validate:"gte=0"`
}

type SubmissionFile struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FilePath     string    `db:"file_path" json:"file_path"`
	FileType     string    `db:"file_type" json:"file_type"`
	FileSize     int64     `db:"file_size" json:"file_size"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type AssignmentFile struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FilePath     string    `db:"file_path" json:"file_path"`
	FileType     string    `db:"file_type" json:"file_type"`
	FileSize     int64     `db:"file_size" json:"file_size"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type CourseDocument struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Title      string    `db:"title" json:"title"`
	FileName   string    `db:"file_name" json:"file_name"`
	FilePath   string    `db:"file_path" json:"file_path"`
	FileType   string    `db:"file_type" json:"file_type"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Message is immutable once sent except for IsRead, which only the receiver flips.
type Message struct {
	ID         string    `db:"id" json:"id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	FileURL    *string   `db:"file_url" json:"file_url"`
	FileName   *string   `db:"file_name" json:"file_name"`
	FileType   *string   `db:"file_type" json:"file_type"`
	IsRead     bool      `db:"is_read" json:"is_read"`
	RepliedTo  *string   `db:"replied_to" json:"replied_to"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Counterpart returns the other participant of m as seen by userID.
func (m Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
