// Package dashboard is the resource layer of the committee client: typed
// models for every backend collection, cached list/CRUD access built on the
// authenticated client and the page walker, and the role-based views the CLI
// renders.
package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-authgate/committee-cli/internal/cache"
	"github.com/go-authgate/committee-cli/internal/pagination"
)

// API is the part of *apiclient.Client the resource layer needs.
type API interface {
	GetJSON(ctx context.Context, ref string, out any) error
	PostJSON(ctx context.Context, ref string, in, out any) error
	PatchJSON(ctx context.Context, ref string, in, out any) error
	Delete(ctx context.Context, ref string) error
	Register(ctx context.Context, in, out any) error
}

// PageSizeParam is the query parameter used as a page size hint.
const PageSizeParam = "page_size"

// Resource is one REST collection such as "tasks/".
type Resource[T any] struct {
	path     string
	api      API
	walker   *pagination.Walker
	cache    *cache.Cache
	pageSize int
	log      *logrus.Logger
}

func newResource[T any](path string, d *Dashboard) *Resource[T] {
	return &Resource[T]{
		path:     path,
		api:      d.api,
		walker:   d.walker,
		cache:    d.cache,
		pageSize: d.pageSize,
		log:      d.log,
	}
}

// Path is the collection path relative to the API base.
func (r *Resource[T]) Path() string { return r.path }

// listRef builds the first page reference, adding the page size hint when the
// caller did not set one. Query values are encoded sorted, so equal filters
// map to the same cache key.
func (r *Resource[T]) listRef(query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if r.pageSize > 0 && q.Get(PageSizeParam) == "" {
		q.Set(PageSizeParam, strconv.Itoa(r.pageSize))
	}
	if len(q) == 0 {
		return r.path
	}
	return r.path + "?" + q.Encode()
}

func (r *Resource[T]) itemRef(id int) string {
	return r.path + strconv.Itoa(id) + "/"
}

// List returns the whole collection, walking every page. Results are cached
// until a mutation on this resource or a logout.
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	ref := r.listRef(query)
	items, err := cache.Fetch(ctx, r.cache, ref, func(ctx context.Context) ([]T, error) {
		return pagination.FetchAll[T](ctx, r.walker, ref)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.path, err)
	}
	return items, nil
}

// Get fetches a single item.
func (r *Resource[T]) Get(ctx context.Context, id int) (T, error) {
	ref := r.itemRef(id)
	item, err := cache.Fetch(ctx, r.cache, ref, func(ctx context.Context) (T, error) {
		var out T
		err := r.api.GetJSON(ctx, ref, &out)
		return out, err
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s: %w", ref, err)
	}
	return item, nil
}

// Create posts in to the collection and returns the created item.
func (r *Resource[T]) Create(ctx context.Context, in any) (T, error) {
	var out T
	err := r.api.PostJSON(ctx, r.path, in, &out)
	r.invalidate()
	if err != nil {
		return out, fmt.Errorf("create in %s: %w", r.path, err)
	}
	return out, nil
}

// Update applies a partial update (PATCH).
func (r *Resource[T]) Update(ctx context.Context, id int, patch any) (T, error) {
	var out T
	err := r.api.PatchJSON(ctx, r.itemRef(id), patch, &out)
	r.invalidate()
	if err != nil {
		return out, fmt.Errorf("update %s: %w", r.itemRef(id), err)
	}
	return out, nil
}

// Delete removes an item.
func (r *Resource[T]) Delete(ctx context.Context, id int) error {
	err := r.api.Delete(ctx, r.itemRef(id))
	r.invalidate()
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.itemRef(id), err)
	}
	return nil
}

// invalidate drops every cached list and item of the resource. It also runs
// after a failed mutation, since the backend may have applied it anyway.
func (r *Resource[T]) invalidate() {
	n := r.cache.InvalidatePrefix(r.path)
	r.log.WithFields(logrus.Fields{
		"resource": strings.TrimSuffix(r.path, "/"),
		"dropped":  n,
	}).Debug("cache invalidated")
}
