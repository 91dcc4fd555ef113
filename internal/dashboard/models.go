package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role decides which view a user gets.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is a program participant as returned by auth/users/me/ and users/.
type User struct {
	ID          int    `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        Role   `json:"role"`
	IsStaff     bool   `json:"is_staff"`
	CommitteeID *int   `json:"committee,omitempty"`
}

// IsAdmin reports whether u gets the admin view. Staff accounts without an
// explicit role are treated as admins.
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	return u.Role == RoleAdmin || (u.Role == "" && u.IsStaff)
}

// DisplayName is the full name, falling back to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func (u User) Row() []string {
	role := string(u.Role)
	if role == "" && u.IsStaff {
		role = string(RoleAdmin)
	}
	return []string{strconv.Itoa(u.ID), u.Email, u.DisplayName(), role}
}

// Week is one unit of the curriculum.
type Week struct {
	ID          int        `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsOn    *Timestamp `json:"start_date,omitempty"`
}

func (w Week) Row() []string {
	return []string{strconv.Itoa(w.ID), strconv.Itoa(w.Number), w.Title, formatTime(w.StartsOn)}
}

// Task is an assignment attached to a week.
type Task struct {
	ID          int        `json:"id"`
	WeekID      int        `json:"week"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *Timestamp `json:"due_date,omitempty"`
}

func (t Task) Row() []string {
	return []string{strconv.Itoa(t.ID), strconv.Itoa(t.WeekID), t.Title, formatTime(t.DueAt)}
}

// Submission is a member's answer to a task.
type Submission struct {
	ID          int        `json:"id"`
	TaskID      int        `json:"task"`
	UserID      int        `json:"user"`
	Link        string     `json:"link"`
	Notes       string     `json:"notes,omitempty"`
	Status      string     `json:"status"`
	SubmittedAt *Timestamp `json:"submitted_at,omitempty"`
}

func (s Submission) Row() []string {
	return []string{strconv.Itoa(s.ID), strconv.Itoa(s.TaskID), strconv.Itoa(s.UserID), s.Status, s.Link}
}

// Feedback is a reviewer's note on a submission.
type Feedback struct {
	ID           int        `json:"id"`
	SubmissionID int        `json:"submission"`
	AuthorID     int        `json:"author,omitempty"`
	Comment      string     `json:"comment"`
	Score        *int       `json:"score,omitempty"`
	CreatedAt    *Timestamp `json:"created_at,omitempty"`
}

func (f Feedback) Row() []string {
	score := "-"
	if f.Score != nil {
		score = strconv.Itoa(*f.Score)
	}
	return []string{strconv.Itoa(f.ID), strconv.Itoa(f.SubmissionID), score, f.Comment}
}

// AttendanceSession is a meeting attendance is taken for.
type AttendanceSession struct {
	ID     int        `json:"id"`
	Title  string     `json:"title"`
	WeekID *int       `json:"week,omitempty"`
	HeldAt *Timestamp `json:"date,omitempty"`
}

func (a AttendanceSession) Row() []string {
	week := "-"
	if a.WeekID != nil {
		week = strconv.Itoa(*a.WeekID)
	}
	return []string{strconv.Itoa(a.ID), a.Title, week, formatTime(a.HeldAt)}
}

// Attendance statuses accepted by the backend.
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceExcused = "excused"
	AttendanceLate    = "late"
)

// AttendanceRecord is one user's status for one session.
type AttendanceRecord struct {
	ID        int    `json:"id"`
	SessionID int    `json:"session"`
	UserID    int    `json:"user"`
	Status    string `json:"status"`
}

func (a AttendanceRecord) Row() []string {
	return []string{strconv.Itoa(a.ID), strconv.Itoa(a.SessionID), strconv.Itoa(a.UserID), a.Status}
}

// Announcement is a program-wide notice.
type Announcement struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"content"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

func (a Announcement) Row() []string {
	return []string{strconv.Itoa(a.ID), a.Title, formatTime(a.CreatedAt)}
}

// Committee is a working group members can join.
type Committee struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c Committee) Row() []string {
	return []string{strconv.Itoa(c.ID), c.Name, c.Description}
}

// Membership links a user to a committee.
type Membership struct {
	ID          int    `json:"id"`
	CommitteeID int    `json:"committee"`
	UserID      int    `json:"user"`
	Role        string `json:"role,omitempty"`
}

func (m Membership) Row() []string {
	return []string{strconv.Itoa(m.ID), strconv.Itoa(m.CommitteeID), strconv.Itoa(m.UserID), m.Role}
}

// Timestamp accepts the backend's datetimes as well as bare dates.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	unq, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", s, err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, unq); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", unq)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(time.RFC3339))), nil
}

func formatTime(t *Timestamp) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Local().Format("2006-01-02 15:04")
}
