// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/store"
)

type differSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&differSuite{})

// ref is a document known only by class and id.
type ref struct {
	store.Object
	id string
}

func (r *ref) ClassName() string { return "Task" }
func (r *ref) ID() string        { return r.id }

// arrayDoc records the array operations applied to it.
type arrayDoc struct {
	store.Object
	attrs map[string]any
	calls []string
	fail  error
}

func newArrayDoc() *arrayDoc {
	return &arrayDoc{attrs: make(map[string]any)}
}

func (d *arrayDoc) ClassName() string { return "Task" }
func (d *arrayDoc) ID() string        { return "owner" }

func (d *arrayDoc) Has(key string) bool {
	_, ok := d.attrs[key]
	return ok
}

func (d *arrayDoc) Get(key string) any { return d.attrs[key] }

func (d *arrayDoc) AddAllUnique(key string, values []any) error {
	d.calls = append(d.calls, "add-all-unique")
	if d.fail != nil {
		return d.fail
	}
	d.attrs[key] = append([]any(nil), values...)
	return nil
}

func (d *arrayDoc) AddUnique(key string, value any) error {
	d.calls = append(d.calls, "add-unique "+value.(store.Object).ID())
	if d.fail != nil {
		return d.fail
	}
	items, _ := d.attrs[key].([]any)
	d.attrs[key] = append(items, value)
	return nil
}

func (d *arrayDoc) Remove(key string, value any) error {
	id := value.(store.Object).ID()
	d.calls = append(d.calls, "remove "+id)
	if d.fail != nil {
		return d.fail
	}
	items, _ := d.attrs[key].([]any)
	var kept []any
	for _, item := range items {
		if item.(store.Object).ID() != id {
			kept = append(kept, item)
		}
	}
	d.attrs[key] = kept
	return nil
}

func ids(objs []store.Object) []string {
	out := make([]string, len(objs))
	for i, obj := range objs {
		out[i] = obj.ID()
	}
	return out
}

func (s *differSuite) TestDiff(c *gc.C) {
	a, b, cc := &ref{id: "a"}, &ref{id: "b"}, &ref{id: "c"}

	delta := Diff([]store.Object{a, b}, []store.Object{b, cc})
	c.Check(ids(delta.ToAdd), jc.DeepEquals, []string{"c"})
	c.Check(ids(delta.ToRemove), jc.DeepEquals, []string{"a"})
}

func (s *differSuite) TestDiffComparesByIdentifier(c *gc.C) {
	current := []store.Object{&ref{id: "a"}}
	desired := []store.Object{&ref{id: "a"}}
	c.Assert(current[0], gc.Not(gc.Equals), desired[0])

	delta := Diff(current, desired)
	c.Check(delta.Empty(), jc.IsTrue)
}

func (s *differSuite) TestDiffIsIdempotent(c *gc.C) {
	desired := []store.Object{&ref{id: "a"}, &ref{id: "b"}}

	first := Diff(nil, desired)
	c.Check(ids(first.ToAdd), jc.DeepEquals, []string{"a", "b"})

	second := Diff(desired, desired)
	c.Check(second.Empty(), jc.IsTrue)
}

func (s *differSuite) TestDiffUnsavedAreAlwaysAdded(c *gc.C) {
	unsaved1, unsaved2 := &ref{}, &ref{}
	delta := Diff([]store.Object{&ref{}}, []store.Object{unsaved1, unsaved2})
	c.Check(delta.ToAdd, gc.HasLen, 2)
	c.Check(delta.ToRemove, gc.HasLen, 0)
}

func (s *differSuite) TestDiffDeduplicates(c *gc.C) {
	delta := Diff(
		[]store.Object{&ref{id: "x"}, &ref{id: "x"}},
		[]store.Object{&ref{id: "a"}, &ref{id: "a"}},
	)
	c.Check(ids(delta.ToAdd), jc.DeepEquals, []string{"a"})
	c.Check(ids(delta.ToRemove), jc.DeepEquals, []string{"x"})
}

func (s *differSuite) TestApplyWithoutPriorValueAddsAll(c *gc.C) {
	doc := newArrayDoc()
	err := ApplyReferenceArray(doc, "blockers", []any{&ref{id: "a"}, &ref{id: "b"}})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(doc.calls, jc.DeepEquals, []string{"add-all-unique"})
	c.Check(ids(References(doc.Get("blockers"))), jc.DeepEquals, []string{"a", "b"})
}

func (s *differSuite) TestApplyUsesAddAndRemove(c *gc.C) {
	doc := newArrayDoc()
	doc.attrs["blockers"] = []any{&ref{id: "a"}, &ref{id: "b"}}

	err := ApplyReferenceArray(doc, "blockers", []any{&ref{id: "b"}, &ref{id: "c"}})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(doc.calls, jc.DeepEquals, []string{"add-unique c", "remove a"})
	c.Check(ids(References(doc.Get("blockers"))), jc.DeepEquals, []string{"b", "c"})
}

func (s *differSuite) TestApplyTwiceIsANoop(c *gc.C) {
	doc := newArrayDoc()
	desired := []any{&ref{id: "a"}, &ref{id: "b"}}

	c.Assert(ApplyReferenceArray(doc, "blockers", desired), jc.ErrorIsNil)
	doc.calls = nil
	c.Assert(ApplyReferenceArray(doc, "blockers", desired), jc.ErrorIsNil)
	c.Check(doc.calls, gc.HasLen, 0)
}

func (s *differSuite) TestApplyRejected(c *gc.C) {
	doc := newArrayDoc()
	doc.attrs["blockers"] = []any{&ref{id: "a"}}
	doc.fail = errors.New("boom")

	err := ApplyReferenceArray(doc, "blockers", []any{})
	c.Check(err, jc.ErrorIs, coreerrors.MutationRejected)
	c.Check(err, gc.ErrorMatches, `removing reference "a" from "blockers": mutation rejected: boom`)
}

func (s *differSuite) TestReferencesIgnoresOtherValues(c *gc.C) {
	refs := References([]any{&ref{id: "a"}, "scalar", nil, &ref{id: "b"}})
	c.Check(ids(refs), jc.DeepEquals, []string{"a", "b"})
	c.Check(References("scalar"), gc.HasLen, 0)
}
