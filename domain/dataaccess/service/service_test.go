// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/docsync/core/entity"
	coreerrors "github.com/juju/docsync/core/errors"
	"github.com/juju/docsync/core/registry"
	"github.com/juju/docsync/core/store"
	"github.com/juju/docsync/internal/config"
	"github.com/juju/docsync/internal/memstore"
)

type project struct {
	entity.Base

	Name string
}

type task struct {
	entity.Base

	Title    string
	Done     bool
	Tags     []string
	Assignee *entity.User
	Project  *project
	Note     string `doc:"-"`
}

type baseSuite struct {
	testing.IsolationSuite

	store    *memstore.Store
	registry *registry.Registry
}

func (s *baseSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.store = memstore.New(memstore.Config{QueryLimit: 2})
	s.registry = registry.New()
	c.Assert(registry.Register[project](s.registry, "Project"), jc.ErrorIsNil)
	c.Assert(registry.Register[task](s.registry, "Task"), jc.ErrorIsNil)
}

func (s *baseSuite) newService(c *gc.C, settings config.Config) *Service[task, *task] {
	svc, err := NewService[task](Config{
		Store:    s.store,
		Registry: s.registry,
		Settings: settings,
	})
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) {
		c.Check(svc.Unsubscribe(), jc.ErrorIsNil)
	})
	return svc
}

func (s *baseSuite) saveTasks(c *gc.C, svc *Service[task, *task], titles ...string) []*task {
	tasks := make([]*task, len(titles))
	for i, title := range titles {
		tasks[i] = &task{Title: title}
	}
	_, err := svc.SaveMany(context.Background(), tasks)
	c.Assert(err, jc.ErrorIsNil)
	return tasks
}

func (s *baseSuite) signUp(c *gc.C, name string) store.User {
	user, err := s.store.SignUp(context.Background(), name, "secret", name+"@example.com", "member")
	c.Assert(err, jc.ErrorIsNil)
	return user
}

func taskTitles(tasks []*task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

type serviceSuite struct {
	baseSuite
}

var _ = gc.Suite(&serviceSuite{})

func (s *serviceSuite) TestNewServiceValidates(c *gc.C) {
	_, err := NewService[task](Config{Registry: s.registry})
	c.Check(err, jc.ErrorIs, errors.NotValid)

	_, err = NewService[task](Config{Store: s.store})
	c.Check(err, jc.ErrorIs, errors.NotValid)

	settings := config.Default()
	settings.SaveBatchSize = 0
	_, err = NewService[task](Config{Store: s.store, Registry: s.registry, Settings: settings})
	c.Check(err, jc.ErrorIs, errors.NotValid)

	settings = config.Default()
	settings.BulkDepth = 0
	_, err = NewService[task](Config{Store: s.store, Registry: s.registry, Settings: settings})
	c.Check(err, gc.ErrorMatches, `bulk-depth 0 not valid`)

	type stranger struct {
		entity.Base
	}
	_, err = NewService[stranger](Config{Store: s.store, Registry: s.registry})
	c.Check(err, jc.ErrorIs, coreerrors.ClassNotRegistered)
}

func (s *serviceSuite) TestClassName(c *gc.C) {
	svc := s.newService(c, config.Config{})
	c.Check(svc.ClassName(), gc.Equals, "Task")
}

func (s *serviceSuite) TestSaveNewTask(c *gc.C) {
	svc := s.newService(c, config.Config{})
	bob := s.signUp(c, "bob")
	t := &task{Title: "X", Assignee: &entity.User{}}
	t.Assignee.SetHandle(bob)

	saved, err := svc.Save(context.Background(), t)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(saved, gc.Equals, t)
	c.Check(t.ID(), gc.Not(gc.Equals), "")

	got, err := svc.GetFullObjectByID(context.Background(), t.ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Title, gc.Equals, "X")
	c.Assert(got.Assignee, gc.NotNil)
	c.Check(got.Assignee.ID(), gc.Equals, bob.ID())
	c.Check(got.Assignee.Username, gc.Equals, "bob")
}

func (s *serviceSuite) TestSaveSwallowsStoreFailure(c *gc.C) {
	svc := s.newService(c, config.Config{})
	s.store.FailNext(memstore.OpSave, errors.New("boom"))

	t := &task{Title: "X"}
	saved, err := svc.Save(context.Background(), t)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(saved, gc.Equals, t)
	c.Check(t.Handle(), gc.IsNil)
	c.Check(s.store.Len("Task"), gc.Equals, 0)
	c.Check(c.GetTestLog(), jc.Contains, "boom")
}

func (s *serviceSuite) TestSaveReturnsTranscodingErrors(c *gc.C) {
	svc := s.newService(c, config.Config{})

	_, err := svc.Save(context.Background(), nil)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *serviceSuite) TestGetAllFetchesEverything(c *gc.C) {
	svc := s.newService(c, config.Config{})
	s.saveTasks(c, svc, "a", "b", "c")

	all, err := svc.GetAll(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(all, gc.HasLen, 3)
	c.Check(taskTitles(all), jc.DeepEquals, []string{"a", "b", "c"})

	ids := make(map[string]bool)
	for _, t := range all {
		ids[t.ID()] = true
	}
	c.Check(ids, gc.HasLen, 3)

	n, err := svc.Count(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(n, gc.Equals, 3)
}

func (s *serviceSuite) TestGetAllEmpty(c *gc.C) {
	svc := s.newService(c, config.Config{})

	all, err := svc.GetAll(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(all, gc.HasLen, 0)
}

func (s *serviceSuite) TestGetAllCountFailureUsesQueryLimit(c *gc.C) {
	settings := config.Default()
	settings.QueryLimit = 1
	svc := s.newService(c, settings)
	s.saveTasks(c, svc, "a", "b", "c")

	s.store.FailNext(memstore.OpCount, errors.New("boom"))
	all, err := svc.GetAll(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(taskTitles(all), jc.DeepEquals, []string{"a"})
	c.Check(c.GetTestLog(), jc.Contains, "counting Task: boom; fetching up to 1")
}

func (s *serviceSuite) TestGetAllFindFailure(c *gc.C) {
	svc := s.newService(c, config.Config{})
	s.saveTasks(c, svc, "a")

	s.store.FailNext(memstore.OpFind, errors.New("boom"))
	_, err := svc.GetAll(context.Background())
	c.Check(err, gc.ErrorMatches, "fetching Task: boom")
}

func (s *serviceSuite) TestGetAllWithIncludes(c *gc.C) {
	svc := s.newService(c, config.Config{})
	p := &project{Name: "p"}
	_, err := svc.SaveMany(context.Background(), []*task{{Title: "a", Project: p}, {Title: "b", Project: p}})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.store.Len("Project"), gc.Equals, 1)

	all, err := svc.GetAllWithIncludes(context.Background(), "project")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(all, gc.HasLen, 2)
	for _, t := range all {
		c.Assert(t.Project, gc.NotNil)
		c.Check(t.Project.Name, gc.Equals, "p")
		c.Check(t.Project.ID(), gc.Equals, p.ID())
	}

	all, err = svc.GetAllWithSubclasses(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(all, gc.HasLen, 2)
	c.Check(all[0].Project.Name, gc.Equals, "p")

	all, err = svc.GetAll(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(all[0].Project.ID(), gc.Equals, p.ID())
	c.Check(all[0].Project.Name, gc.Equals, "")
}

func (s *serviceSuite) TestGetByID(c *gc.C) {
	svc := s.newService(c, config.Config{})
	tasks := s.saveTasks(c, svc, "a", "b")

	got, err := svc.GetByID(context.Background(), tasks[1].ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Title, gc.Equals, "b")
	c.Check(got, gc.Not(gc.Equals), tasks[1])

	_, err = svc.GetByID(context.Background(), "nope")
	c.Check(err, jc.ErrorIs, errors.NotFound)
	c.Check(err, gc.ErrorMatches, `getting Task "nope": Task "nope" not found`)
}

func (s *serviceSuite) TestGetFullObjectByIDWithIncludes(c *gc.C) {
	svc := s.newService(c, config.Config{})
	t := &task{Title: "a", Project: &project{Name: "p"}}
	_, err := svc.Save(context.Background(), t)
	c.Assert(err, jc.ErrorIsNil)

	got, err := svc.GetFullObjectByIDWithIncludes(context.Background(), t.ID(), "project")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Project.Name, gc.Equals, "p")

	got, err = svc.GetFullObjectByIDWithIncludes(context.Background(), t.ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Project.Name, gc.Equals, "")
}

func (s *serviceSuite) TestFetchByID(c *gc.C) {
	svc := s.newService(c, config.Config{})
	tasks := s.saveTasks(c, svc, "a")

	got, err := svc.FetchByID(context.Background(), tasks[0].ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Title, gc.Equals, "a")

	_, err = svc.FetchByID(context.Background(), "nope")
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *serviceSuite) TestFetchIfNeededWithoutBuffer(c *gc.C) {
	svc := s.newService(c, config.Config{})
	tasks := s.saveTasks(c, svc, "a")

	c.Check(svc.FetchLocally(tasks[0].ID()), gc.IsNil)

	got, err := svc.FetchIfNeeded(context.Background(), tasks[0].ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got.Title, gc.Equals, "a")

	got, err = svc.FetchIfNeeded(context.Background(), "nope")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, gc.IsNil)

	s.store.FailNext(memstore.OpGet, errors.New("boom"))
	_, err = svc.FetchIfNeeded(context.Background(), tasks[0].ID())
	c.Check(err, gc.ErrorMatches, `getting Task ".*": boom`)
}

func (s *serviceSuite) TestFetchIfNeededUsesCache(c *gc.C) {
	svc := s.newService(c, config.Config{})
	tasks := s.saveTasks(c, svc, "a")
	_, err := svc.Live(context.Background())
	c.Assert(err, jc.ErrorIsNil)

	cached := svc.FetchLocally(tasks[0].ID())
	c.Assert(cached, gc.NotNil)

	// A store read would consume the queued failure.
	s.store.FailNext(memstore.OpGet, errors.New("boom"))
	got, err := svc.FetchIfNeeded(context.Background(), tasks[0].ID())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, gc.Equals, cached)

	_, err = svc.GetByID(context.Background(), tasks[0].ID())
	c.Check(err, gc.ErrorMatches, `.*boom`)
}

func (s *serviceSuite) TestSaveMany(c *gc.C) {
	svc := s.newService(c, config.Config{})
	p := &project{Name: "p"}
	in := []*task{{Title: "a", Project: p}, {Title: "b"}}

	out, err := svc.SaveMany(context.Background(), in)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.HasLen, 2)
	c.Check(taskTitles(out), jc.DeepEquals, []string{"a", "b"})
	for i := range in {
		c.Check(in[i].ID(), gc.Not(gc.Equals), "")
		c.Check(out[i].ID(), gc.Equals, in[i].ID())
		c.Check(out[i], gc.Not(gc.Equals), in[i])
	}
	c.Check(p.ID(), gc.Not(gc.Equals), "")
	c.Check(out[0].Project.ID(), gc.Equals, p.ID())
	c.Check(s.store.Len("Task"), gc.Equals, 2)
}

func (s *serviceSuite) TestSaveManyRejected(c *gc.C) {
	svc := s.newService(c, config.Config{})
	s.store.FailNext(memstore.OpSave, errors.New("boom"))

	in := []*task{{Title: "a"}, {Title: "b"}}
	_, err := svc.SaveMany(context.Background(), in)
	c.Check(err, jc.ErrorIs, coreerrors.MutationRejected)
	c.Check(err, gc.ErrorMatches, `saving 2 Task: mutation rejected: saving batch at 0: boom`)
	c.Check(in[0].Handle(), gc.IsNil)
}

func (s *serviceSuite) TestDestroy(c *gc.C) {
	svc := s.newService(c, config.Config{})
	tasks := s.saveTasks(c, svc, "a")

	exists, err := svc.CheckExistence(context.Background(), tasks[0])
	c.Assert(err, jc.ErrorIsNil)
	c.Check(exists, jc.IsTrue)

	c.Assert(svc.Destroy(context.Background(), tasks[0]), jc.ErrorIsNil)
	exists, err = svc.CheckExistence(context.Background(), tasks[0])
	c.Assert(err, jc.ErrorIsNil)
	c.Check(exists, jc.IsFalse)
	c.Check(s.store.Len("Task"), gc.Equals, 0)
}

func (s *serviceSuite) TestDestroyWithoutHandle(c *gc.C) {
	svc := s.newService(c, config.Config{})

	err := svc.Destroy(context.Background(), &task{Title: "a"})
	c.Check(err, jc.ErrorIs, coreerrors.MissingHandle)
	c.Check(err, gc.ErrorMatches, `destroying Task: missing document handle`)

	exists, err := svc.CheckExistence(context.Background(), &task{})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(exists, jc.IsFalse)
}

func (s *serviceSuite) TestDestroyRejected(c *gc.C) {
	svc := s.newService(c, config.Config{})
	tasks := s.saveTasks(c, svc, "a")
	s.store.FailNext(memstore.OpDestroy, errors.New("boom"))

	err := svc.Destroy(context.Background(), tasks[0])
	c.Check(err, jc.ErrorIs, coreerrors.MutationRejected)
	c.Check(err, gc.ErrorMatches, `destroying Task ".*": mutation rejected: boom`)
	c.Check(s.store.Len("Task"), gc.Equals, 1)
}

func (s *serviceSuite) TestSetACLByActiveUser(c *gc.C) {
	svc := s.newService(c, config.Config{})
	bob := s.signUp(c, "bob")
	t := &task{Title: "private"}

	got, err := svc.SetACLByActiveUser(context.Background(), t)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, gc.Equals, t)
	c.Assert(t.Handle(), gc.NotNil)

	doc, err := s.store.Query("Task").Get(context.Background(), t.ID())
	c.Assert(err, jc.ErrorIsNil)
	acl := doc.ACL()
	c.Check(acl.ReadAccess(bob.ID()), jc.IsTrue)
	c.Check(acl.WriteAccess(bob.ID()), jc.IsTrue)
	c.Check(acl.ReadAccess("someone-else"), jc.IsFalse)
	c.Check(acl.Identities(), jc.DeepEquals, []string{bob.ID()})
}

func (s *serviceSuite) TestSetACLByActiveUserErrors(c *gc.C) {
	svc := s.newService(c, config.Config{})

	_, err := svc.SetACLByActiveUser(context.Background(), &task{})
	c.Check(err, jc.ErrorIs, errors.NotFound)
	c.Check(err, gc.ErrorMatches, `reading active user: current user not found`)

	s.signUp(c, "bob")
	s.store.FailNext(memstore.OpSave, errors.New("boom"))
	_, err = svc.SetACLByActiveUser(context.Background(), &task{})
	c.Check(err, jc.ErrorIs, coreerrors.MutationRejected)
}
