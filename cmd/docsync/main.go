// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command docsync demonstrates the data access services against an
// in-memory store: it seeds tasks, lists them and streams the live
// changes made while it watches.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/juju/docsync/domain/dataaccess/service"
	"github.com/juju/docsync/internal/config"
	"github.com/juju/docsync/internal/livebuffer"
	"github.com/juju/docsync/internal/memstore"
	"github.com/juju/docsync/internal/transcode"
)

var logger = loggo.GetLogger("docsync.cmd")

func main() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath    string
	loggingConfig string
	seed          int
	watch         time.Duration
}

// Main runs the command and returns its exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	fs := gnuflag.NewFlagSet("docsync", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&opts.loggingConfig, "logging-config", "", "loggo specification overriding the configuration")
	fs.IntVar(&opts.seed, "seed", 3, "number of tasks to create")
	fs.DurationVar(&opts.watch, "watch", 0, "how long to stream live changes")
	if err := fs.Parse(true, args); err != nil {
		return 2
	}
	if len(fs.Args()) > 0 {
		fmt.Fprintf(stderr, "unrecognized args: %q\n", fs.Args())
		return 2
	}

	if err := run(context.Background(), opts, clock.WallClock, stdout); err != nil {
		fmt.Fprintf(stderr, "ERROR %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Read(opts.configPath); err != nil {
			return config.Config{}, errors.Trace(err)
		}
	}
	if opts.loggingConfig != "" {
		cfg.LoggingConfig = opts.loggingConfig
	}
	return cfg, nil
}

func run(ctx context.Context, opts options, clk clock.Clock, stdout io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return errors.Trace(err)
	}
	if err := loggo.ConfigureLoggers(cfg.LoggingConfig); err != nil {
		return errors.Annotate(err, "configuring loggers")
	}

	st := memstore.New(memstore.Config{Clock: clk})
	reg, err := newRegistry()
	if err != nil {
		return errors.Trace(err)
	}
	user, err := st.SignUp(ctx, "demo", "demo", "demo@example.com", "admin")
	if err != nil {
		return errors.Trace(err)
	}

	svcConfig := service.Config{
		Store:    st,
		Registry: reg,
		Settings: cfg,
		Metrics:  livebuffer.NewMetrics(),
	}
	tasks, err := service.NewService[Task](svcConfig)
	if err != nil {
		return errors.Trace(err)
	}

	out := &printer{w: stdout}
	project := &Project{Name: "docsync"}
	assignee := transcode.HydrateUser(user)
	seeded := make([]*Task, opts.seed)
	for i := range seeded {
		seeded[i] = &Task{
			Title:    fmt.Sprintf("task %d", i+1),
			Tags:     []string{"demo"},
			Assignee: assignee,
			Project:  project,
		}
	}
	if _, err := tasks.SaveMany(ctx, seeded); err != nil {
		return errors.Trace(err)
	}

	all, err := tasks.GetAllWithIncludes(ctx, "project", "assignee")
	if err != nil {
		return errors.Trace(err)
	}
	for _, task := range all {
		out.print(task)
	}
	if opts.watch <= 0 {
		return nil
	}

	stop, err := tasks.Watch(ctx, func(change livebuffer.Change) {
		out.print(change)
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer stop()
	defer func() {
		if err := tasks.Unsubscribe(); err != nil {
			logger.Warningf("unsubscribing: %v", err)
		}
	}()

	if _, err := tasks.Save(ctx, &Task{Title: "live task", Project: project}); err != nil {
		return errors.Trace(err)
	}
	if len(all) > 0 {
		all[0].Done = true
		if _, err := tasks.Save(ctx, all[0]); err != nil {
			return errors.Trace(err)
		}
	}
	if len(all) > 1 {
		if err := tasks.Destroy(ctx, all[1]); err != nil {
			return errors.Trace(err)
		}
	}

	<-clk.After(opts.watch)
	return nil
}

// printer writes JSON lines. Changes arrive on other goroutines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) print(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("encoding %T: %v", v, err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, string(data))
}
