// Package storetest holds a reusable check.v1 suite that every store.Store
// implementation runs.
package storetest

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/check.v1"

	"github.com/JakeFAU/fandom-data/internal/store"
	"github.com/JakeFAU/fandom-data/internal/work"
)

// SuiteBase defines store tests that can be executed against any store.Store.
type SuiteBase struct {
	s store.Store
}

// SetStore configures the suite to run all tests against s.
func (b *SuiteBase) SetStore(s store.Store) {
	b.s = s
}

// MustRecord parses a JSON line into a record or fails the test.
func MustRecord(c *check.C, line string) work.Record {
	rec, err := work.ParseRecord([]byte(line))
	c.Assert(err, check.IsNil)
	return rec
}

func sampleLine(id int, title string, kudos int) string {
	return fmt.Sprintf(
		`{"id":"%d","title":%q,"author":"aang","relationships":["Aang/Katara"],"characters":["Aang","Katara"],"freeforms":["Fluff"],"date":"2020-03-0%d","language":"English","words":1200,"kudos":%d,"hits":34000}`,
		id, title, 1+id%9, kudos,
	)
}

// TestUpsertAndFind verifies a stored record reads back with identical fields.
func (b *SuiteBase) TestUpsertAndFind(c *check.C) {
	ctx := context.Background()
	recs := []work.Record{
		MustRecord(c, sampleLine(1, "Tales of Ba Sing Se", 10)),
		MustRecord(c, sampleLine(2, "The Southern Raiders", 20)),
		MustRecord(c, `{"id":3,"title":"Untagged","relationships":[],"characters":[],"freeforms":[],"date":"2019-01-01","language":"","words":0,"kudos":0,"hits":0,"rating":"General"}`),
	}
	c.Assert(b.s.Upsert(ctx, recs), check.IsNil)

	for _, want := range recs {
		got, err := b.s.FindByID(ctx, want.ID)
		c.Assert(err, check.IsNil)
		c.Assert(got.ID, check.Equals, want.ID)
		c.Assert(got.Fields, check.DeepEquals, want.Fields)
	}

	count, err := b.s.Count(ctx)
	c.Assert(err, check.IsNil)
	c.Assert(count, check.Equals, uint64(3))
}

// TestUpsertReplacesDocument verifies fields missing from a newer record do
// not survive from the older one.
func (b *SuiteBase) TestUpsertReplacesDocument(c *check.C) {
	ctx := context.Background()
	c.Assert(b.s.Upsert(ctx, []work.Record{
		MustRecord(c, `{"id":"7","title":"Draft","author":"zuko","kudos":1}`),
	}), check.IsNil)

	updated := MustRecord(c, `{"id":"7","title":"Final","kudos":2}`)
	c.Assert(b.s.Upsert(ctx, []work.Record{updated}), check.IsNil)

	got, err := b.s.FindByID(ctx, "7")
	c.Assert(err, check.IsNil)
	c.Assert(got.Fields, check.DeepEquals, updated.Fields)
	_, hasAuthor := got.Fields["author"]
	c.Assert(hasAuthor, check.Equals, false)
}

// TestUpsertIsIdempotent verifies indexing the same batch twice leaves one
// document per distinct id.
func (b *SuiteBase) TestUpsertIsIdempotent(c *check.C) {
	ctx := context.Background()
	var recs []work.Record
	for i := range 10 {
		recs = append(recs, MustRecord(c, sampleLine(100+i, "Chapter", i)))
	}
	c.Assert(b.s.Upsert(ctx, recs), check.IsNil)
	c.Assert(b.s.Upsert(ctx, recs), check.IsNil)

	count, err := b.s.Count(ctx)
	c.Assert(err, check.IsNil)
	c.Assert(count, check.Equals, uint64(10))
}

// TestLastDuplicateInBatchWins verifies batch order is preserved.
func (b *SuiteBase) TestLastDuplicateInBatchWins(c *check.C) {
	ctx := context.Background()
	c.Assert(b.s.Upsert(ctx, []work.Record{
		MustRecord(c, sampleLine(42, "first", 1)),
		MustRecord(c, sampleLine(42, "second", 2)),
	}), check.IsNil)

	got, err := b.s.FindByID(ctx, "42")
	c.Assert(err, check.IsNil)
	c.Assert(got.Fields["title"], check.Equals, "second")

	count, err := b.s.Count(ctx)
	c.Assert(err, check.IsNil)
	c.Assert(count, check.Equals, uint64(1))
}

// TestFindMissing verifies unknown ids map to store.ErrNotFound.
func (b *SuiteBase) TestFindMissing(c *check.C) {
	_, err := b.s.FindByID(context.Background(), "does-not-exist")
	c.Assert(errors.Is(err, store.ErrNotFound), check.Equals, true)
}

// TestUpsertRejectsMissingID verifies records need an id.
func (b *SuiteBase) TestUpsertRejectsMissingID(c *check.C) {
	err := b.s.Upsert(context.Background(), []work.Record{{Fields: map[string]any{"title": "orphan"}}})
	c.Assert(errors.Is(err, work.ErrMissingID), check.Equals, true)
}

// TestUpsertEmptyBatch verifies an empty batch is a no-op.
func (b *SuiteBase) TestUpsertEmptyBatch(c *check.C) {
	c.Assert(b.s.Upsert(context.Background(), nil), check.IsNil)
}
