package docstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type note struct {
	ID     string   `gorm:"column:id;primaryKey"`
	Title  string   `gorm:"column:title"`
	Amount int64    `gorm:"column:amount"`
	Owner  *string  `gorm:"column:owner"`
	Tags   []string `gorm:"column:tags;serializer:json"`
}

func newTestCollection(t *testing.T) (*gorm.DB, *Collection[note]) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:docstore_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&note{}))
	return conn, New[note](conn)
}

func seedNotes(t *testing.T, c *Collection[note]) {
	t.Helper()
	owner := "ravi"
	for _, n := range []note{
		{ID: "a", Title: "Onion lot", Amount: 300, Owner: &owner, Tags: []string{"x"}},
		{ID: "b", Title: "Potato lot", Amount: 100},
		{ID: "c", Title: "onion seed 50%", Amount: 200},
	} {
		doc := n
		_, err := c.Create(context.Background(), &doc)
		require.NoError(t, err)
	}
}

func TestFindOneAndNotFound(t *testing.T) {
	_, c := newTestCollection(t)
	seedNotes(t, c)
	ctx := context.Background()

	got, err := c.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Onion lot", got.Title)
	assert.Equal(t, []string{"x"}, got.Tags)

	_, err = c.FindByID(ctx, "zzz")
	assert.True(t, IsNotFound(err))

	unowned, err := c.FindOne(ctx, Filter{Equals: map[string]any{"owner": nil, "amount": 100}})
	require.NoError(t, err)
	assert.Equal(t, "b", unowned.ID)
}

func TestFindAllFiltersSortsAndPages(t *testing.T) {
	_, c := newTestCollection(t)
	seedNotes(t, c)
	ctx := context.Background()

	onions, err := c.FindAll(ctx, Filter{Contains: map[string]string{"title": "ONION"}}, FindOptions{Sort: []Sort{{Field: "amount"}}})
	require.NoError(t, err)
	require.Len(t, onions, 2)
	assert.Equal(t, "c", onions[0].ID)
	assert.Equal(t, "a", onions[1].ID)

	literal, err := c.FindAll(ctx, Filter{Contains: map[string]string{"title": "50%"}}, FindOptions{})
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "c", literal[0].ID)

	page, err := c.FindAll(ctx, Filter{}, FindOptions{Skip: 1, Limit: 1, Sort: []Sort{{Field: "amount", Desc: true}}})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)

	count, err := c.Count(ctx, Filter{Contains: map[string]string{"title": "lot"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestReplaceUpdateDelete(t *testing.T) {
	_, c := newTestCollection(t)
	seedNotes(t, c)
	ctx := context.Background()

	doc, err := c.FindByID(ctx, "a")
	require.NoError(t, err)
	doc.Amount = 0
	doc.Owner = nil
	doc.Tags = nil
	ok, err := c.Replace(ctx, doc)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := c.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Amount, "zero values must be written")
	assert.Nil(t, reloaded.Owner)
	assert.Empty(t, reloaded.Tags)

	missing := note{ID: "nope", Title: "ghost"}
	ok, err = c.Replace(ctx, &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Update(ctx, "b", map[string]any{"amount": 150})
	require.NoError(t, err)
	assert.True(t, ok)
	updated, err := c.FindByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.Amount)

	ok, err = c.Update(ctx, "nope", map[string]any{"amount": 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Delete(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Delete(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithTxRollsBack(t *testing.T) {
	conn, c := newTestCollection(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := c.WithTx(tx).Create(ctx, &note{ID: "t", Title: "temp"})
		require.NoError(t, err)
		return assert.AnError
	})
	require.Error(t, err)

	_, err = c.FindByID(ctx, "t")
	assert.True(t, IsNotFound(err))
}
