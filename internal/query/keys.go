package query

import (
	"net/url"
	"strconv"
	"strings"

	"taskboard.com/taskboard/pkg/constants"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50

	// ParentLimit is the page size used to populate the parent selector.
	ParentLimit = 100
)

// Key identifies a cache entry as an ordered list of segments. The first
// segment is the namespace.
type Key []string

// HasPrefix reports whether every segment of prefix matches the leading
// segments of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, segment := range prefix {
		if k[i] != segment {
			return false
		}
	}
	return true
}

func (k Key) String() string {
	return strings.Join(k, " ")
}

// id is the map key of an entry. The separator never appears in an encoded
// query string.
func (k Key) id() string {
	return strings.Join(k, "\x1f")
}

// TasksPrefix matches every task-list entry.
func TasksPrefix() Key {
	return Key{constants.TasksNamespace}
}

// Filters are the parameters of a task-list query.
type Filters struct {
	IncludeSubtasks bool
	Page            int
	Limit           int
	Status          constants.TaskStatus
	Assignee        int64
}

// DefaultFilters returns the filters used by the task list view.
func DefaultFilters() Filters {
	return Filters{IncludeSubtasks: true, Page: DefaultPage, Limit: DefaultLimit}
}

// ParentFilters returns the filters used to list candidate parents.
func ParentFilters() Filters {
	return Filters{IncludeSubtasks: true, Page: DefaultPage, Limit: ParentLimit}
}

// Normalize fills in defaults for out of range values.
func (f Filters) Normalize() Filters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if !f.Status.Valid() {
		f.Status = ""
	}
	if f.Assignee < 0 {
		f.Assignee = 0
	}
	return f
}

// Encode returns the canonical query string. Parameter names are sorted so
// that logically identical filters always encode the same way.
func (f Filters) Encode() string {
	f = f.Normalize()
	values := url.Values{}
	if f.IncludeSubtasks {
		values.Set("include", "subtasks")
	}
	values.Set("page", strconv.Itoa(f.Page))
	values.Set("limit", strconv.Itoa(f.Limit))
	if f.Status != "" {
		values.Set("status", string(f.Status))
	}
	if f.Assignee > 0 {
		values.Set("assignee", strconv.FormatInt(f.Assignee, 10))
	}
	return values.Encode()
}

// TasksKey returns the cache key of a task-list query.
func TasksKey(f Filters) Key {
	return Key{constants.TasksNamespace, f.Encode()}
}

// UsersKey is the single cache key of the user list.
func UsersKey() Key {
	return Key{"users"}
}
