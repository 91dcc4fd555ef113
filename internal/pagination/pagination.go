// Package pagination flattens the backend's paginated collections.
//
// A list endpoint answers either with an envelope
//
//	{"results": [...], "next": "https://host/api/tasks/?page=2"}
//
// or, when the backend does not paginate it, with a bare JSON array. The
// walker follows "next" links one page at a time until they run out or
// MaxPages requests were made, and returns the items in backend order.
package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-authgate/committee-cli/internal/logging"
)

// DefaultMaxPages bounds a single walk so a cyclic or malformed "next" chain
// still terminates.
const DefaultMaxPages = 50

var (
	// ErrMarkerMissing means a next link does not point under the API base.
	ErrMarkerMissing = errors.New("next link is outside the API base")
	// ErrUnexpectedBody means a page was neither an envelope nor an array.
	ErrUnexpectedBody = errors.New("page body is neither a list nor a paginated envelope")

	errNoResults = errors.New("page object has no results")
)

// Getter fetches a reference relative to the API base and decodes the JSON
// body into out. *apiclient.Client satisfies it.
type Getter interface {
	GetJSON(ctx context.Context, ref string, out any) error
}

// Observer is told about every page that was consumed.
type Observer interface {
	PageFetched(ref string, page, items int)
}

// Walker walks paginated collections through a Getter.
type Walker struct {
	Getter   Getter
	Marker   string // API base path, e.g. "/api/"
	MaxPages int
	Log      *logrus.Logger
	Observer Observer
}

// NewWalker returns a walker with the default page ceiling.
func NewWalker(g Getter, marker string, log *logrus.Logger) *Walker {
	if log == nil {
		log = logging.Discard()
	}
	return &Walker{Getter: g, Marker: marker, MaxPages: DefaultMaxPages, Log: log}
}

// Result is a completed walk.
type Result[T any] struct {
	Items []T
	// Pages is the number of requests made.
	Pages int
	// Truncated is set when the walk stopped at MaxPages with a next link
	// still pending.
	Truncated bool
}

// FetchAll returns every item of the collection at ref. Any failed page fails
// the whole fetch and discards what was gathered so far.
func FetchAll[T any](ctx context.Context, w *Walker, ref string) ([]T, error) {
	res, err := Walk[T](ctx, w, ref)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Walk is FetchAll with page accounting.
func Walk[T any](ctx context.Context, w *Walker, ref string) (Result[T], error) {
	maxPages := w.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	log := w.Log
	if log == nil {
		log = logging.Discard()
	}

	var res Result[T]
	res.Items = []T{}
	next := ref

	for next != "" && res.Pages < maxPages {
		current := next
		next = ""

		var raw json.RawMessage
		if err := w.Getter.GetJSON(ctx, current, &raw); err != nil {
			return Result[T]{}, fmt.Errorf("fetch page %d of %s: %w", res.Pages+1, ref, err)
		}
		res.Pages++

		items, link, err := decodePage[T](raw)
		if errors.Is(err, errNoResults) {
			log.WithField("ref", current).Warn("page object has no results, treating as last page")
			break
		}
		if err != nil {
			return Result[T]{}, fmt.Errorf("decode page %d of %s: %w", res.Pages, ref, err)
		}
		res.Items = append(res.Items, items...)
		if w.Observer != nil {
			w.Observer.PageFetched(current, res.Pages, len(items))
		}

		if link == "" {
			break
		}
		nextRef, err := NextRef(link, w.Marker)
		if err != nil {
			log.WithFields(logrus.Fields{
				"ref":  current,
				"next": link,
			}).WithError(err).Warn("unusable next link, treating as last page")
			break
		}
		next = nextRef.String()
	}

	if next != "" {
		res.Truncated = true
		log.WithFields(logrus.Fields{
			"ref":   ref,
			"pages": res.Pages,
			"items": len(res.Items),
		}).Warn("page ceiling reached, returning partial collection")
	}
	return res, nil
}

type envelope struct {
	Results json.RawMessage `json:"results"`
	Next    *string         `json:"next"`
}

// decodePage returns the items of one page and its next link ("" when the
// page is the last one).
func decodePage[T any](raw json.RawMessage) ([]T, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", ErrUnexpectedBody
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", err
		}
		return items, "", nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, "", err
		}
		if len(env.Results) == 0 || bytes.Equal(env.Results, []byte("null")) {
			return nil, "", errNoResults
		}
		var items []T
		if err := json.Unmarshal(env.Results, &items); err != nil {
			return nil, "", err
		}
		if env.Next == nil {
			return items, "", nil
		}
		return items, *env.Next, nil
	}
	return nil, "", ErrUnexpectedBody
}

// Ref is a request target relative to the API base.
type Ref struct {
	Path  string
	Query url.Values
}

func (r Ref) String() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// NextRef translates a backend "next" link into a reference relative to the
// API base, so the follow-up request goes through the same client instead of
// an absolute, possibly cross-origin URL.
func NextRef(next, marker string) (Ref, error) {
	u, err := url.Parse(next)
	if err != nil {
		return Ref{}, fmt.Errorf("parse next link: %w", err)
	}
	if marker == "" {
		marker = "/"
	}
	idx := strings.Index(u.Path, marker)
	if idx < 0 {
		return Ref{}, fmt.Errorf("%w: %q has no %q", ErrMarkerMissing, next, marker)
	}
	return Ref{
		Path:  u.Path[idx+len(marker):],
		Query: u.Query(),
	}, nil
}
