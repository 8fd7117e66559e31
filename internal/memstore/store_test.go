// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/docsync/core/store"
)

type storeSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
	store *Store
}

var _ = gc.Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s.store = New(Config{Clock: s.clock})
}

func (s *storeSuite) newTask(c *gc.C, title string) store.Object {
	obj := s.store.NewObject("Task")
	obj.Set("title", title)
	c.Assert(obj.Save(context.Background()), jc.ErrorIsNil)
	return obj
}

func (s *storeSuite) TestSaveAssignsIdentifier(c *gc.C) {
	obj := s.store.NewObject("Task")
	c.Check(obj.ID(), gc.Equals, "")
	c.Check(obj.IsDataAvailable(), jc.IsTrue)

	obj.Set("title", "X")
	c.Assert(obj.Save(context.Background()), jc.ErrorIsNil)
	c.Check(obj.ID(), gc.Not(gc.Equals), "")
	c.Check(s.store.Len("Task"), gc.Equals, 1)

	o := obj.(*object)
	c.Check(o.CreatedAt().Equal(s.clock.Now()), jc.IsTrue)
	c.Check(o.pending(), jc.IsFalse)
}

func (s *storeSuite) TestSaveUpdatesInPlace(c *gc.C) {
	obj := s.newTask(c, "before")
	id := obj.ID()

	s.clock.Advance(time.Minute)
	obj.Set("title", "after")
	obj.Set("done", true)
	c.Assert(obj.Save(context.Background()), jc.ErrorIsNil)
	c.Check(obj.ID(), gc.Equals, id)
	c.Check(s.store.Len("Task"), gc.Equals, 1)

	got, err := s.store.Query("Task").Get(context.Background(), id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Get("title"), gc.Equals, "after")
	c.Check(got.Get("done"), jc.IsTrue)
	c.Check(got.(*object).UpdatedAt().After(got.(*object).CreatedAt()), jc.IsTrue)
}

func (s *storeSuite) TestSaveWritesNestedDocumentsFirst(c *gc.C) {
	project := s.store.NewObject("Project")
	project.Set("name", "p")
	task := s.store.NewObject("Task")
	task.Set("project", project)
	task.Set("blockers", []any{s.store.NewObject("Task"), s.store.NewObject("Task")})

	c.Assert(task.Save(context.Background()), jc.ErrorIsNil)
	c.Check(project.ID(), gc.Not(gc.Equals), "")
	c.Check(s.store.Len("Project"), gc.Equals, 1)
	c.Check(s.store.Len("Task"), gc.Equals, 3)

	got, err := s.store.Query("Task").Include("project").Get(context.Background(), task.ID())
	c.Assert(err, jc.ErrorIsNil)
	nested := got.Get("project").(store.Object)
	c.Check(nested.ID(), gc.Equals, project.ID())
	c.Check(nested.IsDataAvailable(), jc.IsTrue)
	c.Check(nested.Get("name"), gc.Equals, "p")
	c.Check(got.Get("blockers"), gc.HasLen, 2)
}

func (s *storeSuite) TestSaveUnknownIdentifier(c *gc.C) {
	obj := s.store.CreateWithoutData("Task", "missing")
	obj.Set("title", "X")
	err := obj.Save(context.Background())
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestPointerWithoutInclude(c *gc.C) {
	project := s.store.NewObject("Project")
	project.Set("name", "p")
	task := s.store.NewObject("Task")
	task.Set("project", project)
	c.Assert(task.Save(context.Background()), jc.ErrorIsNil)

	got, err := s.store.Query("Task").Get(context.Background(), task.ID())
	c.Assert(err, jc.ErrorIsNil)
	nested := got.Get("project").(store.Object)
	c.Check(nested.ID(), gc.Equals, project.ID())
	c.Check(nested.IsDataAvailable(), jc.IsFalse)
	c.Check(nested.Has("name"), jc.IsFalse)

	c.Assert(s.store.FetchAllIfNeededWithInclude(context.Background(), []store.Object{nested}), jc.ErrorIsNil)
	c.Check(nested.Get("name"), gc.Equals, "p")
}

func (s *storeSuite) TestArrayOperationsMergeOnServer(c *gc.C) {
	obj := s.store.NewObject("Task")
	c.Assert(obj.AddAllUnique("labels", []any{"a", "b", "a"}), jc.ErrorIsNil)
	c.Check(obj.Get("labels"), jc.DeepEquals, []any{"a", "b"})
	c.Assert(obj.Save(context.Background()), jc.ErrorIsNil)

	// Two clients holding the same document both mutate the array.
	mine := s.store.CreateWithoutData("Task", obj.ID())
	c.Assert(mine.Fetch(context.Background()), jc.ErrorIsNil)
	theirs := s.store.CreateWithoutData("Task", obj.ID())
	c.Assert(theirs.Fetch(context.Background()), jc.ErrorIsNil)

	c.Assert(mine.AddUnique("labels", "c"), jc.ErrorIsNil)
	c.Assert(mine.Save(context.Background()), jc.ErrorIsNil)
	c.Assert(theirs.Remove("labels", "a"), jc.ErrorIsNil)
	c.Assert(theirs.Save(context.Background()), jc.ErrorIsNil)

	got, err := s.store.Query("Task").Get(context.Background(), obj.ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Get("labels"), jc.DeepEquals, []any{"b", "c"})
}

func (s *storeSuite) TestAddUniqueKeepsDistinctNewDocuments(c *gc.C) {
	obj := s.store.NewObject("Task")
	a, b := s.store.NewObject("Task"), s.store.NewObject("Task")
	c.Assert(obj.AddAllUnique("blockers", []any{a, b, a}), jc.ErrorIsNil)
	c.Check(obj.Get("blockers"), gc.HasLen, 2)
}

func (s *storeSuite) TestUnset(c *gc.C) {
	obj := s.newTask(c, "X")
	obj.Unset("title")
	c.Assert(obj.Save(context.Background()), jc.ErrorIsNil)

	got, err := s.store.Query("Task").Get(context.Background(), obj.ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Has("title"), jc.IsFalse)
}

func (s *storeSuite) TestDestroy(c *gc.C) {
	obj := s.newTask(c, "X")
	exists, err := obj.Exists(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(exists, jc.IsTrue)

	c.Assert(obj.Destroy(context.Background()), jc.ErrorIsNil)
	exists, err = obj.Exists(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(exists, jc.IsFalse)

	err = obj.Destroy(context.Background())
	c.Check(err, jc.ErrorIs, errors.NotFound)

	err = s.store.NewObject("Task").Destroy(context.Background())
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *storeSuite) TestFetch(c *gc.C) {
	obj := s.newTask(c, "X")

	ptr := s.store.CreateWithoutData("Task", obj.ID())
	c.Check(ptr.IsDataAvailable(), jc.IsFalse)
	c.Assert(ptr.Fetch(context.Background()), jc.ErrorIsNil)
	c.Check(ptr.IsDataAvailable(), jc.IsTrue)
	c.Check(ptr.Get("title"), gc.Equals, "X")

	err := s.store.NewObject("Task").Fetch(context.Background())
	c.Check(err, jc.ErrorIs, errors.NotValid)

	err = s.store.CreateWithoutData("Task", "missing").Fetch(context.Background())
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestSaveAll(c *gc.C) {
	objs := make([]store.Object, 5)
	for i := range objs {
		objs[i] = s.store.NewObject("Task")
		objs[i].Set("n", i)
	}
	c.Assert(s.store.SaveAll(context.Background(), objs, 2), jc.ErrorIsNil)
	c.Check(s.store.Len("Task"), gc.Equals, 5)

	more := []store.Object{s.store.NewObject("Task"), s.store.NewObject("Task")}
	s.store.FailNext(OpSave, errors.New("boom"))
	err := s.store.SaveAll(context.Background(), more, 1)
	c.Check(err, gc.ErrorMatches, `saving batch at 0: boom`)
}

func (s *storeSuite) TestClone(c *gc.C) {
	obj := s.newTask(c, "X")
	acl := store.NewACL()
	acl.SetPublicReadAccess(true)
	obj.SetACL(acl)

	clone := obj.Clone()
	c.Check(clone.ID(), gc.Equals, "")
	c.Check(clone.Get("title"), gc.Equals, "X")
	c.Check(clone.ACL().ReadAccess("anyone"), jc.IsTrue)
	c.Assert(clone.Save(context.Background()), jc.ErrorIsNil)
	c.Check(clone.ID(), gc.Not(gc.Equals), obj.ID())
}

func (s *storeSuite) TestACLPersists(c *gc.C) {
	obj := s.store.NewObject("Task")
	acl := store.NewACL()
	acl.SetReadAccess("bob", true)
	obj.SetACL(acl)
	c.Assert(obj.Save(context.Background()), jc.ErrorIsNil)

	got, err := s.store.Query("Task").Get(context.Background(), obj.ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.ACL().ReadAccess("bob"), jc.IsTrue)
	c.Check(got.ACL().WriteAccess("bob"), jc.IsFalse)
}

func (s *storeSuite) TestFiles(c *gc.C) {
	f := s.store.NewFile("a.txt", []byte("hello"))
	c.Check(f.Name(), gc.Equals, "a.txt")
	c.Check(strings.HasPrefix(f.URL(), "memstore://files/"), jc.IsTrue)
	c.Check(f.(*file).Data(), gc.DeepEquals, []byte("hello"))
}

func (s *storeSuite) TestSessions(c *gc.C) {
	ctx := context.Background()
	_, err := s.store.CurrentUser(ctx)
	c.Check(err, jc.ErrorIs, errors.NotFound)

	user, err := s.store.SignUp(ctx, "bob", "secret", "bob@example.com", "member")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(user.Username(), gc.Equals, "bob")
	c.Check(user.ClassName(), gc.Equals, store.UserClass)
	c.Check(user.SessionToken(), gc.Matches, `r:.+`)

	current, err := s.store.CurrentUser(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(current.ID(), gc.Equals, user.ID())
	c.Check(current.Get("email"), gc.Equals, "bob@example.com")

	_, err = s.store.SignUp(ctx, "bob", "other", "", "")
	c.Check(err, jc.ErrorIs, errors.AlreadyExists)

	c.Assert(s.store.LogOut(ctx), jc.ErrorIsNil)
	_, err = s.store.CurrentUser(ctx)
	c.Check(err, jc.ErrorIs, errors.NotFound)

	_, err = s.store.LogIn(ctx, "bob", "wrong")
	c.Check(err, jc.ErrorIs, errors.Unauthorized)

	again, err := s.store.LogIn(ctx, "bob", "secret")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(again.ID(), gc.Equals, user.ID())
	c.Check(again.SessionToken(), gc.Not(gc.Equals), user.SessionToken())
}

func (s *storeSuite) TestFailNextIsConsumedOnce(c *gc.C) {
	s.store.FailNext(OpCount, errors.New("boom"))

	_, err := s.store.Query("Task").Count(context.Background())
	c.Check(err, gc.ErrorMatches, "boom")
	_, err = s.store.Query("Task").Count(context.Background())
	c.Check(err, jc.ErrorIsNil)
}

func (s *storeSuite) TestObjectsFromAnotherStore(c *gc.C) {
	other := New(Config{})
	err := s.store.FetchAllWithInclude(context.Background(), []store.Object{other.NewObject("Task")})
	c.Check(err, jc.ErrorIs, errors.NotSupported)

	_, err = s.store.Subscribe(context.Background(), other.Query("Task"), "")
	c.Check(err, jc.ErrorIs, errors.NotSupported)
}
