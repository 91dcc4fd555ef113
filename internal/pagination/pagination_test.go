package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/committee-cli/internal/apiclient"
	"github.com/go-authgate/committee-cli/internal/session"
)

type item struct {
	ID int `json:"id"`
}

// fakeGetter serves canned bodies keyed by reference and records every call.
type fakeGetter struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	serve  func(ref string) (string, error)
	called []string
}

func (g *fakeGetter) GetJSON(_ context.Context, ref string, out any) error {
	g.mu.Lock()
	g.called = append(g.called, ref)
	g.mu.Unlock()

	var (
		body string
		err  error
	)
	switch {
	case g.serve != nil:
		body, err = g.serve(ref)
	case g.errs[ref] != nil:
		err = g.errs[ref]
	default:
		var ok bool
		body, ok = g.pages[ref]
		if !ok {
			err = fmt.Errorf("unexpected ref %q", ref)
		}
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (g *fakeGetter) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.called...)
}

func itemsJSON(from, n int) string {
	out := make([]item, n)
	for i := range out {
		out[i] = item{ID: from + i}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func envelopeJSON(from, n int, next string) string {
	nextJSON := "null"
	if next != "" {
		nextJSON = strconv.Quote(next)
	}
	return fmt.Sprintf(`{"count": 25, "results": %s, "next": %s}`, itemsJSON(from, n), nextJSON)
}

type pageCounter struct {
	mu    sync.Mutex
	pages []int
}

func (p *pageCounter) PageFetched(_ string, page, _ int) {
	p.mu.Lock()
	p.pages = append(p.pages, page)
	p.mu.Unlock()
}

func TestFetchAllFollowsNextLinks(t *testing.T) {
	g := &fakeGetter{pages: map[string]string{
		"tasks/":        envelopeJSON(1, 10, "https://committee.example.com/api/tasks/?page=2"),
		"tasks/?page=2": envelopeJSON(11, 10, "https://committee.example.com/api/tasks/?page=3"),
		"tasks/?page=3": envelopeJSON(21, 5, ""),
	}}
	obs := &pageCounter{}
	w := NewWalker(g, "/api/", nil)
	w.Observer = obs

	items, err := FetchAll[item](context.Background(), w, "tasks/")
	require.NoError(t, err)
	require.Len(t, items, 25)
	for i, it := range items {
		assert.Equal(t, i+1, it.ID, "items must keep backend order")
	}
	assert.Equal(t, []string{"tasks/", "tasks/?page=2", "tasks/?page=3"}, g.calls())
	assert.Equal(t, []int{1, 2, 3}, obs.pages)
}

func TestFetchAllBareArray(t *testing.T) {
	g := &fakeGetter{pages: map[string]string{"weeks/": itemsJSON(1, 7)}}

	res, err := Walk[item](context.Background(), NewWalker(g, "/api/", nil), "weeks/")
	require.NoError(t, err)
	assert.Len(t, res.Items, 7)
	assert.Equal(t, 1, res.Pages)
	assert.False(t, res.Truncated)
}

func TestFetchAllEmptyCollection(t *testing.T) {
	g := &fakeGetter{pages: map[string]string{"weeks/": `{"results": [], "next": null}`}}

	items, err := FetchAll[item](context.Background(), NewWalker(g, "/api/", nil), "weeks/")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestWalkStopsAtPageCeiling(t *testing.T) {
	g := &fakeGetter{serve: func(ref string) (string, error) {
		return envelopeJSON(1, 1, "https://committee.example.com/api/tasks/?page=2"), nil
	}}

	res, err := Walk[item](context.Background(), NewWalker(g, "/api/", nil), "tasks/")
	require.NoError(t, err)
	assert.Len(t, g.calls(), DefaultMaxPages)
	assert.Equal(t, DefaultMaxPages, res.Pages)
	assert.Len(t, res.Items, DefaultMaxPages)
	assert.True(t, res.Truncated)

	items, err := FetchAll[item](context.Background(), NewWalker(g, "/api/", nil), "tasks/")
	require.NoError(t, err)
	assert.Len(t, items, DefaultMaxPages)
}

func TestWalkCustomCeiling(t *testing.T) {
	g := &fakeGetter{serve: func(string) (string, error) {
		return envelopeJSON(1, 2, "/api/tasks/?page=9"), nil
	}}
	w := NewWalker(g, "/api/", nil)
	w.MaxPages = 3

	res, err := Walk[item](context.Background(), w, "tasks/")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Len(t, res.Items, 6)
	assert.True(t, res.Truncated)
}

func TestWalkStopsOnUnusableNextLink(t *testing.T) {
	tests := []struct {
		name string
		next string
	}{
		{"no marker", "https://committee.example.com/v2/tasks/?page=2"},
		{"unparseable", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGetter{pages: map[string]string{
				"tasks/": envelopeJSON(1, 4, tt.next),
			}}

			res, err := Walk[item](context.Background(), NewWalker(g, "/api/", nil), "tasks/")
			require.NoError(t, err)
			assert.Len(t, res.Items, 4)
			assert.Equal(t, 1, res.Pages)
			assert.False(t, res.Truncated)
		})
	}
}

func TestWalkObjectWithoutResultsEndsWalk(t *testing.T) {
	g := &fakeGetter{pages: map[string]string{
		"tasks/":        envelopeJSON(1, 3, "/api/tasks/?page=2"),
		"tasks/?page=2": `{"detail": "nothing here"}`,
	}}

	res, err := Walk[item](context.Background(), NewWalker(g, "/api/", nil), "tasks/")
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, 2, res.Pages)
}

func TestFetchAllMidWalkFailureDiscardsItems(t *testing.T) {
	boom := errors.New("connection reset")
	g := &fakeGetter{
		pages: map[string]string{
			"tasks/": envelopeJSON(1, 10, "https://committee.example.com/api/tasks/?page=2"),
		},
		errs: map[string]error{"tasks/?page=2": boom},
	}

	items, err := FetchAll[item](context.Background(), NewWalker(g, "/api/", nil), "tasks/")
	require.ErrorIs(t, err, boom)
	assert.Nil(t, items)
	assert.Contains(t, err.Error(), "page 2")
}

func TestFetchAllRejectsScalarBody(t *testing.T) {
	g := &fakeGetter{pages: map[string]string{"tasks/": `"oops"`}}

	_, err := FetchAll[item](context.Background(), NewWalker(g, "/api/", nil), "tasks/")
	require.ErrorIs(t, err, ErrUnexpectedBody)
}

func TestNextRef(t *testing.T) {
	tests := []struct {
		name    string
		next    string
		marker  string
		want    string
		wantErr error
	}{
		{
			name:   "absolute link",
			next:   "https://committee.example.com/api/tasks/?page=2",
			marker: "/api/",
			want:   "tasks/?page=2",
		},
		{
			name:   "other host",
			next:   "http://10.0.0.5:8000/api/submissions/?page=3&week=1",
			marker: "/api/",
			want:   "submissions/?page=3&week=1",
		},
		{
			name:   "relative link",
			next:   "/api/feedback/?page=2",
			marker: "/api/",
			want:   "feedback/?page=2",
		},
		{
			name:   "nested base",
			next:   "https://h.example.com/backend/api/weeks/?page=2",
			marker: "/backend/api/",
			want:   "weeks/?page=2",
		},
		{
			name:    "marker missing",
			next:    "https://committee.example.com/v1/tasks/?page=2",
			marker:  "/api/",
			wantErr: ErrMarkerMissing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := NextRef(tt.next, tt.marker)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.String())
		})
	}
}

// TestWalkThroughClient runs a walk end to end through the API client, so the
// absolute next links the backend emits are followed against the client's own
// base URL.
func TestWalkThroughClient(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprint(w, envelopeJSON(1, 2, "https://public.example.com/api/announcements/?page=2"))
		case "2":
			fmt.Fprint(w, envelopeJSON(3, 2, ""))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := session.NewMemoryStore(session.Tokens{Access: "a", Refresh: "r"})
	c, err := apiclient.New(srv.URL+"/api/", store, apiclient.WithDoer(httpDoer{srv.Client()}))
	require.NoError(t, err)

	items, err := FetchAll[item](context.Background(), NewWalker(c, c.Marker(), nil), "announcements/")
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, 4, items[3].ID)
	assert.Equal(t, 2, hits)
}

type httpDoer struct{ c *http.Client }

func (d httpDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return d.c.Do(req.WithContext(ctx))
}

func BenchmarkDecodePage(b *testing.B) {
	raw := json.RawMessage(envelopeJSON(1, 50, "https://committee.example.com/api/tasks/?page=2"))
	b.ResetTimer()
	for b.Loop() {
		_, _, _ = decodePage[item](raw)
	}
}
