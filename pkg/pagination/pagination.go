package pagination

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/tradeledger/pkg/docstore"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many documents any list query can request.
	MaxLimit = 200
)

// Params holds skip/limit/sort inputs from controllers or services. Sort is
// a comma separated list of fields, "-" prefixed for descending.
type Params struct {
	Skip  int
	Limit int
	Sort  string
}

// Page is one window of a listing plus the total match count.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// NormalizeSkip clamps negative offsets to zero.
func NormalizeSkip(skip int) int {
	if skip < 0 {
		return 0
	}
	return skip
}

// FindOptions converts params into store options. allowed maps public sort
// names to column names; fallback applies when no sort was requested.
func (p Params) FindOptions(allowed map[string]string, fallback ...docstore.Sort) (docstore.FindOptions, error) {
	sorts, err := ParseSort(p.Sort, allowed)
	if err != nil {
		return docstore.FindOptions{}, err
	}
	if len(sorts) == 0 {
		sorts = fallback
	}
	return docstore.FindOptions{
		Skip:  NormalizeSkip(p.Skip),
		Limit: NormalizeLimit(p.Limit),
		Sort:  sorts,
	}, nil
}

// ParseSort validates a sort expression against the allowed fields.
func ParseSort(raw string, allowed map[string]string) ([]docstore.Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []docstore.Sort
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		column, ok := allowed[name]
		if !ok {
			return nil, fmt.Errorf("unsupported sort field %q", name)
		}
		out = append(out, docstore.Sort{Field: column, Desc: desc})
	}
	return out, nil
}
