package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/prepflow/backend/monoprocess"
	"github.com/notifyhub/prepflow/client"
	"github.com/notifyhub/prepflow/internal/config"
	"github.com/notifyhub/prepflow/internal/prepare"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/worker"
)

const aggregationPollInterval = 5 * time.Second

func runWorker(ctx context.Context, cfg config.Config, submitFile string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// Worker and submissions share this process, pollers are woken up directly.
	a.backend = monoprocess.NewMonoprocessBackend(a.backend, 64, 10*time.Millisecond)
	a.client = client.New(a.backend)

	options := worker.DefaultOptions
	options.WorkflowPollers = cfg.WorkflowPollers
	options.ActivityPollers = cfg.ActivityPollers
	options.MaxParallelActivityTasks = cfg.MaxParallelActivityTasks

	w := worker.New(a.backend, &options)
	if err := prepare.Register(w, a.activities); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	g.Go(func() error {
		<-ctx.Done()
		return w.WaitForCompletion()
	})

	if a.aggregations != nil {
		g.Go(func() error {
			return a.pollAggregations(ctx)
		})
	}

	if submitFile != "" {
		g.Go(func() error {
			return a.submitFile(ctx, submitFile)
		})
	}

	a.logger.Info("worker running", "backend", cfg.Backend)

	return g.Wait()
}

// pollAggregations reports notifications whose aggregation trigger is due.
func (a *app) pollAggregations(ctx context.Context) error {
	t := time.NewTicker(aggregationPollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			due, err := a.aggregations.Due(ctx, now, 100)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				a.logger.Error("reading due aggregations", "error", err)
				continue
			}

			for _, id := range due {
				state, err := a.store.State(ctx, id)
				if err != nil {
					a.logger.Error("loading notification", log.NotificationIDKey, id, "error", err)
					continue
				}

				a.logger.Info("aggregation due",
					log.NotificationIDKey, id,
					"status", state.Status,
					log.RecipientsKey, state.TotalRecipients)
			}
		}
	}
}

func (a *app) submitFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var input prepare.Input
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if input.AggregationDelaySeconds == 0 {
		input.AggregationDelaySeconds = a.cfg.AggregationDelaySeconds()
	}

	instance, err := prepare.Submit(ctx, a.client, input)
	if err != nil {
		return fmt.Errorf("submitting notification %s: %w", input.NotificationID, err)
	}

	a.logger.Info("submitted notification", log.NotificationIDKey, input.NotificationID, log.ExecutionIDKey, instance.ExecutionID)

	return nil
}

func (a *app) printStatus(ctx context.Context, w io.Writer, notificationID string) error {
	instanceState, err := a.client.GetWorkflowInstanceState(ctx, prepare.Instance(notificationID))
	if err != nil {
		return fmt.Errorf("getting instance state: %w", err)
	}

	fmt.Fprintf(w, "instance:   %s\n", instanceState)

	state, err := a.store.State(ctx, notificationID)
	if err != nil {
		if errors.Is(err, prepare.ErrNotificationNotFound) {
			fmt.Fprintln(w, "notification: not prepared yet")
			return nil
		}

		return err
	}

	fmt.Fprintf(w, "status:     %s\n", state.Status)
	fmt.Fprintf(w, "preparing:  %t\n", state.IsPreparing)
	fmt.Fprintf(w, "recipients: %d\n", state.TotalRecipients)
	if state.ErrorMessage != "" {
		fmt.Fprintf(w, "error:      %s\n", state.ErrorMessage)
	}

	return nil
}

func (a *app) cancel(ctx context.Context, notificationID string) error {
	if err := a.client.CancelWorkflowInstance(ctx, prepare.Instance(notificationID)); err != nil {
		return fmt.Errorf("canceling notification %s: %w", notificationID, err)
	}

	return nil
}

type directoryFile struct {
	Users []prepare.Recipient `json:"users"`
	Teams []struct {
		prepare.Team
		Members []string `json:"members"`
	} `json:"teams"`
}

func (a *app) seed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var dir directoryFile
	if err := json.Unmarshal(data, &dir); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, u := range dir.Users {
		if err := a.store.AddUser(ctx, u); err != nil {
			return err
		}
	}

	for _, t := range dir.Teams {
		if err := a.store.AddTeam(ctx, t.Team, t.Members...); err != nil {
			return err
		}
	}

	a.logger.Info("seeded directory", "users", len(dir.Users), "teams", len(dir.Teams))

	return nil
}
