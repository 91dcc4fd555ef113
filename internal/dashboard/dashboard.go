package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-authgate/committee-cli/internal/cache"
	"github.com/go-authgate/committee-cli/internal/logging"
	"github.com/go-authgate/committee-cli/internal/pagination"
)

// MeCacheKey is where the current user profile is cached.
const MeCacheKey = "auth/me"

// ErrInvalidInput is returned before any request is made when arguments are
// obviously wrong.
var ErrInvalidInput = errors.New("invalid input")

// Options tunes a Dashboard.
type Options struct {
	// PageSize is sent as a page size hint on list requests; 0 omits it.
	PageSize int
	Log      *logrus.Logger
}

// Dashboard groups every resource of the backend behind one cache.
type Dashboard struct {
	api      API
	walker   *pagination.Walker
	cache    *cache.Cache
	pageSize int
	log      *logrus.Logger

	Users              *Resource[User]
	Weeks              *Resource[Week]
	Tasks              *Resource[Task]
	Submissions        *Resource[Submission]
	Feedback           *Resource[Feedback]
	AttendanceSessions *Resource[AttendanceSession]
	AttendanceRecords  *Resource[AttendanceRecord]
	Announcements      *Resource[Announcement]
	Committees         *Resource[Committee]
	Memberships        *Resource[Membership]
}

// New wires the resources to api. The walker must fetch through the same api.
func New(api API, walker *pagination.Walker, c *cache.Cache, opts Options) *Dashboard {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	d := &Dashboard{
		api:      api,
		walker:   walker,
		cache:    c,
		pageSize: opts.PageSize,
		log:      opts.Log,
	}
	d.Users = newResource[User]("users/", d)
	d.Weeks = newResource[Week]("weeks/", d)
	d.Tasks = newResource[Task]("tasks/", d)
	d.Submissions = newResource[Submission]("submissions/", d)
	d.Feedback = newResource[Feedback]("feedback/", d)
	d.AttendanceSessions = newResource[AttendanceSession]("attendance/sessions/", d)
	d.AttendanceRecords = newResource[AttendanceRecord]("attendance/records/", d)
	d.Announcements = newResource[Announcement]("announcements/", d)
	d.Committees = newResource[Committee]("committees/", d)
	d.Memberships = newResource[Membership]("committees/memberships/", d)
	return d
}

// Cache returns the cache shared by all resources.
func (d *Dashboard) Cache() *cache.Cache { return d.cache }

type submissionRequest struct {
	Task  int    `json:"task"`
	Link  string `json:"link"`
	Notes string `json:"notes,omitempty"`
}

// SubmitTask hands in work for a task.
func (d *Dashboard) SubmitTask(ctx context.Context, taskID int, link, notes string) (Submission, error) {
	link = strings.TrimSpace(link)
	if taskID <= 0 || link == "" {
		return Submission{}, fmt.Errorf("%w: a task id and a link are required", ErrInvalidInput)
	}
	return d.Submissions.Create(ctx, submissionRequest{Task: taskID, Link: link, Notes: notes})
}

type feedbackRequest struct {
	Submission int    `json:"submission"`
	Comment    string `json:"comment"`
	Score      *int   `json:"score,omitempty"`
}

// GiveFeedback reviews a submission. score is optional.
func (d *Dashboard) GiveFeedback(ctx context.Context, submissionID int, comment string, score *int) (Feedback, error) {
	comment = strings.TrimSpace(comment)
	if submissionID <= 0 || comment == "" {
		return Feedback{}, fmt.Errorf("%w: a submission id and a comment are required", ErrInvalidInput)
	}
	fb, err := d.Feedback.Create(ctx, feedbackRequest{Submission: submissionID, Comment: comment, Score: score})
	// the submission's review status changes with it
	d.cache.InvalidatePrefix(d.Submissions.Path())
	return fb, err
}

var attendanceStatuses = []string{AttendancePresent, AttendanceAbsent, AttendanceExcused, AttendanceLate}

type attendanceRequest struct {
	Session int    `json:"session"`
	User    int    `json:"user"`
	Status  string `json:"status"`
}

// MarkAttendance records userID's status for a session.
func (d *Dashboard) MarkAttendance(ctx context.Context, sessionID, userID int, status string) (AttendanceRecord, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !slices.Contains(attendanceStatuses, status) {
		return AttendanceRecord{}, fmt.Errorf("%w: status must be one of %s", ErrInvalidInput, strings.Join(attendanceStatuses, ", "))
	}
	if sessionID <= 0 || userID <= 0 {
		return AttendanceRecord{}, fmt.Errorf("%w: a session id and a user id are required", ErrInvalidInput)
	}
	return d.AttendanceRecords.Create(ctx, attendanceRequest{Session: sessionID, User: userID, Status: status})
}

type membershipRequest struct {
	Committee int `json:"committee"`
}

// JoinCommittee adds the current user to a committee.
func (d *Dashboard) JoinCommittee(ctx context.Context, committeeID int) (Membership, error) {
	if committeeID <= 0 {
		return Membership{}, fmt.Errorf("%w: a committee id is required", ErrInvalidInput)
	}
	m, err := d.Memberships.Create(ctx, membershipRequest{Committee: committeeID})
	// the profile carries the committee
	d.cache.Delete(MeCacheKey)
	d.cache.InvalidatePrefix(d.Committees.Path())
	return m, err
}

// NewUser is an account created by an admin.
type NewUser struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      Role   `json:"role"`
}

// CreateUser registers an account. An empty role means member.
func (d *Dashboard) CreateUser(ctx context.Context, in NewUser) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	local, domain, ok := strings.Cut(in.Email, "@")
	if !ok || local == "" || domain == "" {
		return User{}, fmt.Errorf("%w: %q is not an email address", ErrInvalidInput, in.Email)
	}
	if in.Password == "" {
		return User{}, fmt.Errorf("%w: a password is required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = RoleMember
	}
	if in.Role != RoleAdmin && in.Role != RoleMember {
		return User{}, fmt.Errorf("%w: role must be %s or %s", ErrInvalidInput, RoleAdmin, RoleMember)
	}

	var u User
	err := d.api.Register(ctx, in, &u)
	d.cache.InvalidatePrefix(d.Users.Path())
	if err != nil {
		return User{}, err
	}
	d.log.WithField("email", logging.Email(u.Email)).Info("user created")
	return u, nil
}
