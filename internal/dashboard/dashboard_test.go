package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/committee-cli/internal/apiclient"
	"github.com/go-authgate/committee-cli/internal/cache"
	"github.com/go-authgate/committee-cli/internal/pagination"
	"github.com/go-authgate/committee-cli/internal/session"
)

type httpDoer struct{ c *http.Client }

func (d httpDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.c.Do(req.WithContext(ctx))
}

// backend records requests and answers from a per-path handler table.
type backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests []*url.URL
	bodies   []string
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{routes: map[string]func(http.ResponseWriter, *http.Request){}}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		b.mu.Lock()
		u := *r.URL
		b.requests = append(b.requests, &u)
		b.bodies = append(b.bodies, string(body))
		h := b.routes[r.Method+" "+r.URL.Path]
		b.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handle(pattern string, h func(w http.ResponseWriter, r *http.Request)) {
	b.mu.Lock()
	b.routes[pattern] = h
	b.mu.Unlock()
}

func (b *backend) respond(pattern string, v any) {
	b.handle(pattern, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(v)
	})
}

func (b *backend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, u := range b.requests {
		if u.Path == path {
			n++
		}
	}
	return n
}

func (b *backend) last() (*url.URL, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := len(b.requests) - 1
	return b.requests[i], b.bodies[i]
}

func newTestDashboard(t *testing.T, b *backend, pageSize int) *Dashboard {
	t.Helper()
	store := session.NewMemoryStore(session.Tokens{Access: "access", Refresh: "refresh"})
	c, err := apiclient.New(b.srv.URL+"/api/", store, apiclient.WithDoer(httpDoer{b.srv.Client()}))
	require.NoError(t, err)
	return New(c, pagination.NewWalker(c, c.Marker(), nil), cache.New(0), Options{PageSize: pageSize})
}

func TestListWalksPagesAndSendsPageSize(t *testing.T) {
	b := newBackend(t)
	b.handle("GET /api/tasks/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page_size"))
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprint(w, `{"results": [{"id": 1, "week": 1, "title": "a"}, {"id": 2, "week": 1, "title": "b"}], "next": "http://backend.internal/api/tasks/?page=2&page_size=2"}`)
		default:
			fmt.Fprint(w, `{"results": [{"id": 3, "week": 2, "title": "c", "due_date": "2026-03-01"}], "next": null}`)
		}
	})
	d := newTestDashboard(t, b, 2)

	tasks, err := d.Tasks.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "c", tasks[2].Title)
	require.NotNil(t, tasks[2].DueAt)
	assert.Equal(t, time.March, tasks[2].DueAt.Month())
	assert.Equal(t, 2, b.count("/api/tasks/"))
}

func TestListIsCachedUntilMutation(t *testing.T) {
	b := newBackend(t)
	b.respond("GET /api/announcements/", []Announcement{{ID: 1, Title: "Welcome"}})
	b.handle("POST /api/announcements/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 2, "title": "Week 2"}`)
	})
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	_, err := d.Announcements.List(ctx, nil)
	require.NoError(t, err)
	_, err = d.Announcements.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, b.count("/api/announcements/"), "second list must be served from cache")

	created, err := d.Announcements.Create(ctx, map[string]string{"title": "Week 2"})
	require.NoError(t, err)
	assert.Equal(t, 2, created.ID)

	_, err = d.Announcements.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, b.count("/api/announcements/"), "list must be refetched after create")
}

func TestGetUpdateDelete(t *testing.T) {
	b := newBackend(t)
	b.respond("GET /api/weeks/4/", Week{ID: 4, Number: 4, Title: "Go basics"})
	b.handle("PATCH /api/weeks/4/", func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]string
		_ = json.NewDecoder(r.Body).Decode(&patch)
		_ = json.NewEncoder(w).Encode(Week{ID: 4, Number: 4, Title: patch["title"]})
	})
	b.handle("DELETE /api/weeks/4/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	w, err := d.Weeks.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Go basics", w.Title)

	w, err = d.Weeks.Update(ctx, 4, map[string]string{"title": "Go in depth"})
	require.NoError(t, err)
	assert.Equal(t, "Go in depth", w.Title)

	require.NoError(t, d.Weeks.Delete(ctx, 4))
	assert.Zero(t, d.Cache().Len())
}

func TestGetNotFound(t *testing.T) {
	b := newBackend(t)
	d := newTestDashboard(t, b, 0)

	_, err := d.Tasks.Get(context.Background(), 99)
	require.ErrorIs(t, err, apiclient.ErrNotFound)
}

func TestSubmitTask(t *testing.T) {
	b := newBackend(t)
	b.handle("POST /api/submissions/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 11, "task": 3, "user": 7, "link": "https://git.example.com/x", "status": "pending"}`)
	})
	d := newTestDashboard(t, b, 0)

	sub, err := d.SubmitTask(context.Background(), 3, " https://git.example.com/x ", "")
	require.NoError(t, err)
	assert.Equal(t, 11, sub.ID)

	_, body := b.last()
	assert.JSONEq(t, `{"task": 3, "link": "https://git.example.com/x"}`, body)
}

func TestDomainOperationsValidateInput(t *testing.T) {
	b := newBackend(t)
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	_, err := d.SubmitTask(ctx, 3, "  ", "")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = d.GiveFeedback(ctx, 1, "", nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = d.MarkAttendance(ctx, 1, 2, "asleep")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = d.JoinCommittee(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.requests)
}

func TestGiveFeedbackInvalidatesSubmissions(t *testing.T) {
	b := newBackend(t)
	b.respond("GET /api/submissions/", []Submission{{ID: 1, Status: "pending"}})
	b.handle("POST /api/feedback/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": 5, "submission": 1, "comment": "nice", "score": 9}`)
	})
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	_, err := d.Submissions.List(ctx, nil)
	require.NoError(t, err)

	score := 9
	fb, err := d.GiveFeedback(ctx, 1, "nice", &score)
	require.NoError(t, err)
	require.NotNil(t, fb.Score)
	assert.Equal(t, 9, *fb.Score)

	_, err = d.Submissions.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.count("/api/submissions/"))
}

func TestMarkAttendanceAndJoinCommittee(t *testing.T) {
	b := newBackend(t)
	b.handle("POST /api/attendance/records/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": 1, "session": 2, "user": 3, "status": "late"}`)
	})
	b.handle("POST /api/committees/memberships/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": 8, "committee": 4, "user": 3}`)
	})
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	rec, err := d.MarkAttendance(ctx, 2, 3, "Late")
	require.NoError(t, err)
	assert.Equal(t, AttendanceLate, rec.Status)
	_, body := b.last()
	assert.JSONEq(t, `{"session": 2, "user": 3, "status": "late"}`, body)

	d.Cache().Set(MeCacheKey, &User{ID: 3})
	m, err := d.JoinCommittee(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, m.CommitteeID)
	_, ok := d.Cache().Get(MeCacheKey)
	assert.False(t, ok, "joining a committee must drop the cached profile")
}

func TestMemberViewRefusesAdminResources(t *testing.T) {
	b := newBackend(t)
	d := newTestDashboard(t, b, 0)
	member := &User{ID: 7, Role: RoleMember}

	v := d.ViewFor(member)
	assert.False(t, v.Admin())
	assert.NotContains(t, v.Resources(), NameUsers)
	assert.Contains(t, v.Resources(), NameSubmissions)

	_, err := v.Table(context.Background(), NameUsers)
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, err, apiclient.ErrForbidden)
	assert.Zero(t, b.count("/api/users/"))
}

func TestMemberViewScopesOwnItems(t *testing.T) {
	b := newBackend(t)
	b.handle("GET /api/submissions/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("user"))
		// a backend ignoring the filter must not leak other members' work
		_ = json.NewEncoder(w).Encode([]Submission{
			{ID: 1, UserID: 7, Status: "pending"},
			{ID: 2, UserID: 8, Status: "pending"},
		})
	})
	d := newTestDashboard(t, b, 0)

	tbl, err := d.ViewFor(&User{ID: 7, Role: RoleMember}).Table(context.Background(), NameSubmissions)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "1", tbl.Rows[0][0])
	assert.Len(t, tbl.Columns, len(tbl.Rows[0]))
}

func TestMemberViewWithoutProfile(t *testing.T) {
	b := newBackend(t)
	d := newTestDashboard(t, b, 0)

	_, err := d.ViewFor(nil).Table(context.Background(), NameAttendanceRecords)
	require.ErrorIs(t, err, ErrNoProfile)
}

func TestAdminViewSeesEverything(t *testing.T) {
	b := newBackend(t)
	b.respond("GET /api/users/", map[string]any{
		"results": []User{{ID: 1, Email: "admin@example.com", Role: RoleAdmin}, {ID: 2, Email: "m@example.com", IsStaff: false}},
		"next":    nil,
	})
	d := newTestDashboard(t, b, 0)
	admin := &User{ID: 1, Role: RoleAdmin}

	v := d.ViewFor(admin)
	assert.Len(t, v.Resources(), len(catalogue))

	tbl, err := v.Table(context.Background(), NameUsers)
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)
	assert.Equal(t, "admin@example.com", tbl.Rows[0][1])
}

func TestUnknownResource(t *testing.T) {
	d := newTestDashboard(t, newBackend(t), 0)
	_, err := d.ViewFor(&User{Role: RoleAdmin}).Table(context.Background(), "grades")
	require.ErrorIs(t, err, ErrUnknownResource)
}

func TestUserRole(t *testing.T) {
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	assert.True(t, (&User{IsStaff: true}).IsAdmin())
	assert.False(t, (&User{Role: RoleMember, IsStaff: true}).IsAdmin())
	assert.False(t, (*User)(nil).IsAdmin())
	assert.Equal(t, "a@example.com", (&User{Email: "a@example.com"}).DisplayName())
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).DisplayName())
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: `"2026-03-01T10:30:00Z"`, want: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
		{in: `"2026-03-01T10:30:00.123456"`, want: time.Date(2026, 3, 1, 10, 30, 0, 123456000, time.UTC)},
		{in: `"2026-03-01"`, want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: `null`},
		{in: `"yesterday"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.in), &ts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}
}

func TestCreateUser(t *testing.T) {
	b := newBackend(t)
	b.handle("POST /api/auth/users/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 21, "email": "new@example.com", "first_name": "Nia", "role": "member"}`)
	})
	b.respond("GET /api/users/", []User{{ID: 1}})
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	_, err := d.Users.List(ctx, nil)
	require.NoError(t, err)

	u, err := d.CreateUser(ctx, NewUser{Email: " New@Example.com ", Password: "pw", FirstName: "Nia"})
	require.NoError(t, err)
	assert.Equal(t, 21, u.ID)
	assert.Equal(t, RoleMember, u.Role)
	_, body := b.last()
	assert.JSONEq(t, `{"email": "new@example.com", "password": "pw", "first_name": "Nia", "role": "member"}`, body)

	_, err = d.Users.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.count("/api/users/"), "creating a user drops the cached user list")
}

func TestCreateUserValidation(t *testing.T) {
	b := newBackend(t)
	d := newTestDashboard(t, b, 0)
	ctx := context.Background()

	for name, in := range map[string]NewUser{
		"no at sign":  {Email: "nobody", Password: "pw"},
		"no domain":   {Email: "nobody@", Password: "pw"},
		"no password": {Email: "a@example.com"},
		"bad role":    {Email: "a@example.com", Password: "pw", Role: "owner"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.CreateUser(ctx, in)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Zero(t, b.count("/api/auth/users/"))
}
