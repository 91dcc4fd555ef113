package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-authgate/committee-cli/internal/apiclient"
)

var (
	// ErrForbidden is returned when a member asks for an admin-only resource.
	// It matches apiclient.ErrForbidden too.
	ErrForbidden = fmt.Errorf("%w: resource is restricted to admins", apiclient.ErrForbidden)
	// ErrUnknownResource is returned for names that are not in the catalogue.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrNoProfile is returned when a per-user view is requested before the
	// profile could be fetched.
	ErrNoProfile = errors.New("user profile not available")
)

// Name identifies a resource in the CLI.
type Name string

const (
	NameUsers              Name = "users"
	NameWeeks              Name = "weeks"
	NameTasks              Name = "tasks"
	NameSubmissions        Name = "submissions"
	NameFeedback           Name = "feedback"
	NameAttendanceSessions Name = "attendance-sessions"
	NameAttendanceRecords  Name = "attendance"
	NameAnnouncements      Name = "announcements"
	NameCommittees         Name = "committees"
	NameMemberships        Name = "memberships"
)

// Table is a rendered list.
type Table struct {
	Name    Name
	Columns []string
	Rows    [][]string
}

type rower interface {
	Row() []string
}

type entry struct {
	name      Name
	columns   []string
	adminOnly bool
	// perUser lists are narrowed to the member's own items
	perUser bool
	rows    func(ctx context.Context, d *Dashboard, owner int) ([][]string, error)
}

// catalogue is ordered the way the CLI lists resources.
var catalogue = []entry{
	{
		name: NameAnnouncements, columns: []string{"ID", "TITLE", "POSTED"},
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Announcements, nil, nil)
		},
	},
	{
		name: NameWeeks, columns: []string{"ID", "WEEK", "TITLE", "STARTS"},
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Weeks, nil, nil)
		},
	},
	{
		name: NameTasks, columns: []string{"ID", "WEEK", "TITLE", "DUE"},
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Tasks, nil, nil)
		},
	},
	{
		name: NameSubmissions, columns: []string{"ID", "TASK", "USER", "STATUS", "LINK"},
		perUser: true,
		rows: func(ctx context.Context, d *Dashboard, owner int) ([][]string, error) {
			return rowsOf(ctx, d.Submissions, ownerQuery(owner), func(s Submission) bool {
				return owner == 0 || s.UserID == owner
			})
		},
	},
	{
		name: NameFeedback, columns: []string{"ID", "SUBMISSION", "SCORE", "COMMENT"},
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Feedback, nil, nil)
		},
	},
	{
		name: NameAttendanceRecords, columns: []string{"ID", "SESSION", "USER", "STATUS"},
		perUser: true,
		rows: func(ctx context.Context, d *Dashboard, owner int) ([][]string, error) {
			return rowsOf(ctx, d.AttendanceRecords, ownerQuery(owner), func(r AttendanceRecord) bool {
				return owner == 0 || r.UserID == owner
			})
		},
	},
	{
		name: NameCommittees, columns: []string{"ID", "NAME", "DESCRIPTION"},
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Committees, nil, nil)
		},
	},
	{
		name: NameAttendanceSessions, columns: []string{"ID", "TITLE", "WEEK", "HELD"},
		adminOnly: true,
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.AttendanceSessions, nil, nil)
		},
	},
	{
		name: NameMemberships, columns: []string{"ID", "COMMITTEE", "USER", "ROLE"},
		adminOnly: true,
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Memberships, nil, nil)
		},
	},
	{
		name: NameUsers, columns: []string{"ID", "EMAIL", "NAME", "ROLE"},
		adminOnly: true,
		rows: func(ctx context.Context, d *Dashboard, _ int) ([][]string, error) {
			return rowsOf(ctx, d.Users, nil, nil)
		},
	},
}

func ownerQuery(owner int) url.Values {
	if owner == 0 {
		return nil
	}
	return url.Values{"user": {strconv.Itoa(owner)}}
}

func rowsOf[T rower](ctx context.Context, r *Resource[T], query url.Values, keep func(T) bool) ([][]string, error) {
	items, err := r.List(ctx, query)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		if keep != nil && !keep(it) {
			continue
		}
		rows = append(rows, it.Row())
	}
	return rows, nil
}

// View is the dashboard as seen by one user.
type View struct {
	d    *Dashboard
	user *User
}

// ViewFor returns the view for user. A nil user gets the member view.
func (d *Dashboard) ViewFor(user *User) *View {
	return &View{d: d, user: user}
}

// Admin reports whether the view is the admin one.
func (v *View) Admin() bool { return v.user.IsAdmin() }

// Resources lists the names the view can show.
func (v *View) Resources() []Name {
	names := make([]Name, 0, len(catalogue))
	for _, e := range catalogue {
		if e.adminOnly && !v.Admin() {
			continue
		}
		names = append(names, e.name)
	}
	return names
}

// Table lists one resource. Members only see their own submissions and
// attendance, and are refused admin-only resources.
func (v *View) Table(ctx context.Context, name Name) (Table, error) {
	var e *entry
	for i := range catalogue {
		if catalogue[i].name == name {
			e = &catalogue[i]
			break
		}
	}
	if e == nil {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	if e.adminOnly && !v.Admin() {
		return Table{}, fmt.Errorf("%s: %w", name, ErrForbidden)
	}

	owner := 0
	if e.perUser && !v.Admin() {
		if v.user == nil || v.user.ID == 0 {
			return Table{}, fmt.Errorf("%s: %w", name, ErrNoProfile)
		}
		owner = v.user.ID
	}

	rows, err := e.rows(ctx, v.d, owner)
	if err != nil {
		return Table{}, err
	}
	return Table{Name: name, Columns: e.columns, Rows: rows}, nil
}
