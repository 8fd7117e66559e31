// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/errors"

	"github.com/juju/docsync/core/entity"
	"github.com/juju/docsync/core/registry"
)

// Project groups tasks.
type Project struct {
	entity.Base

	Name string `doc:"name" json:"name"`
}

// Task is the demonstration class.
type Task struct {
	entity.Base

	Title    string       `doc:"title" json:"title"`
	Done     bool         `doc:"done" json:"done"`
	Tags     []string     `doc:"tags" json:"tags,omitempty"`
	Assignee *entity.User `doc:"assignee" json:"assignee,omitempty"`
	Project  *Project     `doc:"project" json:"project,omitempty"`
}

func newRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := registry.Register[Project](reg, "Project"); err != nil {
		return nil, errors.Trace(err)
	}
	if err := registry.Register[Task](reg, "Task"); err != nil {
		return nil, errors.Trace(err)
	}
	return reg, nil
}
