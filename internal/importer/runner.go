// Package importer runs one import: read the export, group it, and write
// the groups into the store with its triggers suspended.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ritiek/smsdb-import/internal/config"
	"github.com/ritiek/smsdb-import/internal/grouping"
	"github.com/ritiek/smsdb-import/internal/message"
	"github.com/ritiek/smsdb-import/internal/notify"
	"github.com/ritiek/smsdb-import/internal/smsdb"
)

// Summary reports what a run did.
type Summary struct {
	RunID             string
	Generation        string
	Policy            string
	Messages          int
	Groups            int
	SavedGroups       int
	FailedGroups      int
	Outgoing          int
	Incoming          int
	TriggersSuspended int
	DryRun            bool
	Duration          time.Duration
}

type Runner struct {
	cfg       config.Config
	publisher notify.Publisher
	logger    *slog.Logger
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(cfg config.Config, publisher notify.Publisher, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, publisher: publisher, logger: logger}
}

// Run executes the import. The returned summary is non-nil whenever the
// input was read, including failed runs, so callers can report progress.
// With ContinueOnError set, failed conversations do not stop the run but
// their errors are still joined into the result.
//
// Triggers dropped by the run are always restored before Run returns. A
// restore failure is joined into the returned error and matches
// smsdb.ErrTriggerRestore.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{
		RunID:  uuid.NewString(),
		DryRun: r.cfg.DryRun,
	}
	logger := r.logger.With("run_id", sum.RunID)

	policy, err := grouping.NewPolicy(r.cfg.Policy, r.cfg.Window)
	if err != nil {
		return nil, err
	}
	gen, err := smsdb.ParseGeneration(r.cfg.Generation)
	if err != nil {
		return nil, err
	}
	sum.Policy = policy.Name()

	msgs, err := message.ReadFile(r.cfg.InputPath, logger)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	sum.Messages = len(msgs)

	convs := policy.Group(msgs)
	sum.Groups = len(convs)
	logger.Info("input grouped",
		"path", r.cfg.InputPath,
		"messages", sum.Messages,
		"groups", sum.Groups,
		"policy", sum.Policy,
	)

	if r.cfg.DryRun {
		for _, c := range convs {
			sum.Outgoing += c.OutgoingCount()
			sum.Incoming += c.IncomingCount()
		}
		sum.Duration = time.Since(start)
		return sum, nil
	}

	store, err := smsdb.Open(ctx, r.cfg.StorePath, smsdb.Options{
		Key:         r.cfg.StoreKey,
		BusyTimeout: r.cfg.BusyTimeout,
	})
	if err != nil {
		return sum, err
	}
	defer store.Close()

	err = r.load(ctx, store, gen, convs, sum, logger)
	sum.Duration = time.Since(start)
	if err == nil || sum.SavedGroups > 0 {
		r.publish(sum, logger)
	}
	return sum, err
}

// restoreTriggers is replaced in tests.
var restoreTriggers = func(ctx context.Context, m *smsdb.TriggerManager) error {
	return m.RestoreAll(ctx)
}

// load writes convs with the store's triggers suspended.
func (r *Runner) load(ctx context.Context, store *smsdb.Store, want smsdb.Generation, convs []*grouping.Conversation, sum *Summary, logger *slog.Logger) (err error) {
	gen, err := store.ResolveGeneration(ctx, want)
	if err != nil {
		return err
	}
	sum.Generation = gen.String()

	adapter, err := smsdb.NewAdapter(ctx, store, gen, smsdb.AdapterOptions{Service: r.cfg.Service})
	if err != nil {
		return err
	}

	triggers, err := smsdb.NewTriggerManager(ctx, store, gen, logger)
	if err != nil {
		return err
	}
	if err := triggers.DropAll(ctx); err != nil {
		return fmt.Errorf("suspend triggers: %w", err)
	}
	sum.TriggersSuspended = len(triggers.Triggers())
	logger.Info("triggers suspended", "generation", sum.Generation, "triggers", sum.TriggersSuspended)

	// Restore runs on a fresh context: a cancelled run must still put the
	// triggers back.
	defer func() {
		if rerr := restoreTriggers(context.WithoutCancel(ctx), triggers); rerr != nil {
			logger.Error("failed to restore triggers", "error", rerr)
			err = errors.Join(err, rerr)
			return
		}
		logger.Info("triggers restored", "triggers", sum.TriggersSuspended)
	}()

	var saveErr error
	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			saveErr = err
			break
		}

		ins, err := adapter.SaveConversation(ctx, conv)
		if err != nil {
			sum.FailedGroups++
			logger.Warn("failed to save conversation",
				"address", conv.Address(),
				"messages", conv.Len(),
				"error", err,
			)
			if r.cfg.ContinueOnError {
				saveErr = errors.Join(saveErr, err)
				continue
			}
			saveErr = err
			break
		}

		sum.SavedGroups++
		sum.Outgoing += ins.Outgoing
		sum.Incoming += ins.Incoming
		logger.Debug("conversation saved",
			"address", conv.Address(),
			"messages", ins.Messages,
			"conversation_id", ins.ConversationID,
			"new_conversation", ins.ConversationCreated,
		)
	}

	// Committed groups are counted even when the run was cancelled.
	if sum.SavedGroups > 0 {
		if err := store.IncrementCounters(context.WithoutCancel(ctx), sum.Outgoing, sum.Incoming); err != nil {
			return errors.Join(saveErr, fmt.Errorf("increment counters: %w", err))
		}
	}

	if saveErr != nil && r.cfg.ContinueOnError {
		logger.Warn("some conversations were not saved", "saved", sum.SavedGroups, "failed", sum.FailedGroups)
	}
	return saveErr
}

func (r *Runner) publish(sum *Summary, logger *slog.Logger) {
	if r.publisher == nil {
		return
	}
	subject := r.cfg.NatsSubject
	if subject == "" {
		subject = notify.SubjectImportCompleted
	}
	if err := r.publisher.Publish(subject, notify.ImportCompleted{
		RunID:        sum.RunID,
		Store:        r.cfg.StorePath,
		Generation:   sum.Generation,
		Policy:       sum.Policy,
		Messages:     sum.Messages,
		Groups:       sum.Groups,
		SavedGroups:  sum.SavedGroups,
		FailedGroups: sum.FailedGroups,
		Outgoing:     sum.Outgoing,
		Incoming:     sum.Incoming,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		logger.Warn("failed to publish import event", "error", err)
	}
}
