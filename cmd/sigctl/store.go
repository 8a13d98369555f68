package main

import (
	"fmt"
	"time"

	"sigqueue/internal/domain"
	"sigqueue/internal/infra/db"

	"github.com/google/uuid"
)

const leaseTTL = 30 * time.Second

type stageListCommand struct {
	app    *app
	Worker string `long:"worker" required:"true" description:"worker identity"`
}

func (c *stageListCommand) Execute([]string) error {
	worker, err := domain.NewWorkerIdentity(c.Worker)
	if err != nil {
		return err
	}
	backend, err := c.app.openBackend(c.app.ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	entries, err := backend.Staged(c.app.ctx, worker)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := fmt.Fprintln(c.app.out, entry); err != nil {
			return err
		}
	}
	return nil
}

type stageRequeueCommand struct {
	app    *app
	Worker string `long:"worker" required:"true" description:"identity of the dead worker"`
	Force  bool   `long:"force" description:"requeue even while the worker holds its lease"`
}

func (c *stageRequeueCommand) Execute([]string) error {
	worker, err := domain.NewWorkerIdentity(c.Worker)
	if err != nil {
		return err
	}
	backend, err := c.app.openBackend(c.app.ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	if !c.Force {
		// Holding the lease briefly proves the worker is gone and keeps it
		// from restarting mid-requeue.
		token := "sigctl-" + uuid.NewString()
		if err := backend.Claim(c.app.ctx, worker, token, leaseTTL); err != nil {
			return fmt.Errorf("worker %s looks alive (use --force to override): %w", worker, err)
		}
		defer func() { _ = backend.Release(c.app.ctx, worker, token) }()
	}

	moved, err := backend.Requeue(c.app.ctx, worker)
	if err != nil {
		return fmt.Errorf("requeue %s after %d entries: %w", worker, moved, err)
	}
	_, err = fmt.Fprintf(c.app.out, "requeued %d entries from %s\n", moved, worker)
	return err
}

type poisonListCommand struct {
	app     *app
	Limit   int  `long:"limit" default:"20" description:"maximum number of messages"`
	Archive bool `long:"archive" description:"read the Postgres archive instead of Redis"`
}

func (c *poisonListCommand) Execute([]string) error {
	var (
		messages []domain.PoisonMessage
		err      error
	)
	if c.Archive {
		messages, err = c.listArchive()
	} else {
		messages, err = c.listRecent()
	}
	if err != nil {
		return err
	}
	return writeJSON(c.app, messages)
}

func (c *poisonListCommand) listRecent() ([]domain.PoisonMessage, error) {
	backend, err := c.app.openBackend(c.app.ctx)
	if err != nil {
		return nil, err
	}
	defer backend.Close()
	return backend.ListPoison(c.app.ctx, c.Limit)
}

func (c *poisonListCommand) listArchive() ([]domain.PoisonMessage, error) {
	archive, err := c.app.openArchive()
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	if !archive.Enabled() {
		return nil, fmt.Errorf("POSTGRES_DSN is required for --archive")
	}
	return db.NewPoisonRepository(archive.DB).List(c.app.ctx, c.Limit)
}
