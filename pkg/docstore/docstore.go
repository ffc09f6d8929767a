// Package docstore is the document-store collaborator the reconcilers are
// built on. Every collection is a GORM model whose primary key column is
// "id"; single-document writes are atomic, nothing spans collections.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter selects documents. Equals matches columns exactly (nil matches
// NULL); Contains is a case-insensitive substring match.
type Filter struct {
	Equals   map[string]any
	Contains map[string]string
}

// Sort orders FindAll results by a column.
type Sort struct {
	Field string
	Desc  bool
}

// FindOptions pages and orders FindAll.
type FindOptions struct {
	Skip  int
	Limit int
	Sort  []Sort
}

// Store is the collection surface consumed by services.
type Store[T any] interface {
	FindOne(ctx context.Context, filter Filter) (*T, error)
	FindByID(ctx context.Context, id any) (*T, error)
	FindAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Create(ctx context.Context, doc *T) (*T, error)
	Replace(ctx context.Context, doc *T) (bool, error)
	Update(ctx context.Context, id any, fields map[string]any) (bool, error)
	Delete(ctx context.Context, id any) (bool, error)
}

// ErrNotFound is returned (wrapped) when a lookup matches nothing.
var ErrNotFound = gorm.ErrRecordNotFound

// IsNotFound reports whether err signals a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Collection is the GORM-backed Store.
type Collection[T any] struct {
	db *gorm.DB
}

// New constructs a collection bound to the provided connection or transaction.
func New[T any](db *gorm.DB) *Collection[T] {
	return &Collection[T]{db: db}
}

// WithTx returns a collection that shares the caller's transaction.
func (c *Collection[T]) WithTx(tx *gorm.DB) *Collection[T] {
	if tx == nil {
		return c
	}
	return &Collection[T]{db: tx}
}

func (c *Collection[T]) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return c.db
	}
	return c.db.WithContext(ctx)
}

func (c *Collection[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	var doc T
	if err := applyFilter(c.conn(ctx).Model(new(T)), filter).Take(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Collection[T]) FindByID(ctx context.Context, id any) (*T, error) {
	return c.FindOne(ctx, Filter{Equals: map[string]any{"id": id}})
}

func (c *Collection[T]) FindAll(ctx context.Context, filter Filter, opts FindOptions) ([]T, error) {
	query := applyFilter(c.conn(ctx).Model(new(T)), filter)
	if len(opts.Sort) == 0 {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	}
	for _, s := range opts.Sort {
		field := strings.TrimSpace(s.Field)
		if field == "" {
			return nil, fmt.Errorf("sort field is required")
		}
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: s.Desc})
	}
	if opts.Skip > 0 {
		query = query.Offset(opts.Skip)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var docs []T
	if err := query.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Collection[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	var count int64
	if err := applyFilter(c.conn(ctx).Model(new(T)), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Collection[T]) Create(ctx context.Context, doc *T) (*T, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is required")
	}
	if err := c.conn(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

// Replace overwrites every column of an existing document, zero values
// included. It reports false when no document has the primary key.
func (c *Collection[T]) Replace(ctx context.Context, doc *T) (bool, error) {
	if doc == nil {
		return false, fmt.Errorf("document is required")
	}
	res := c.conn(ctx).Model(doc).Select("*").Omit("created_at").Updates(doc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Update applies a partial update of scalar columns.
func (c *Collection[T]) Update(ctx context.Context, id any, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return false, fmt.Errorf("no fields to update")
	}
	res := c.conn(ctx).Model(new(T)).Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id any) (bool, error) {
	res := c.conn(ctx).Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).Delete(new(T))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	for _, key := range sortedKeys(filter.Equals) {
		query = query.Where(clause.Eq{Column: clause.Column{Name: key}, Value: filter.Equals[key]})
	}
	for _, key := range sortedKeys(filter.Contains) {
		needle := strings.ToLower(strings.TrimSpace(filter.Contains[key]))
		if needle == "" {
			continue
		}
		query = query.Where(clause.Expr{
			SQL:  `LOWER(?) LIKE ? ESCAPE '\'`,
			Vars: []any{clause.Column{Name: key}, "%" + likeEscaper.Replace(needle) + "%"},
		})
	}
	return query
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
