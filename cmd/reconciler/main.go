package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/observability"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/shared"
	mysqlrepo "github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/storage/mysql"
)

// The reconciler drains the settlement outbox: captures whose booking
// records failed to persist are replayed until they land. Run it from
// cron or as a sidecar loop; one pass per invocation.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.Workers).
		Int("batch", cfg.OutboxBatch).
		Msg("reconciler starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	entries, err := repo.DueOutbox(ctx, time.Now().UTC(), cfg.OutboxBatch)
	if err != nil {
		log.Fatal().Err(err).Msg("load outbox failed")
	}
	observability.OutboxDepth.Set(float64(len(entries)))
	if len(entries) == 0 {
		log.Info().Msg("outbox empty, nothing to reconcile")
		return
	}

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, e := range entries {
		e := e

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(entry domain.OutboxEntry) {
			defer wg.Done()
			defer sem.Release(1)
			reconcile(ctx, repo, entry)
		}(e)
	}

	wg.Wait()
	log.Info().Msg("reconciliation pass completed")
}

func reconcile(ctx context.Context, repo *mysqlrepo.Repo, entry domain.OutboxEntry) {
	if entry.Kind == domain.OutboxOrphanCapture {
		// Captured funds whose room went to a racing booking. Nothing to
		// replay; these wait for a manual refund, so just keep shouting.
		log.Error().
			Int64("outbox_id", entry.ID).
			RawJSON("payload", entry.Payload).
			Msg("orphan capture awaiting manual refund")
		return
	}

	var settlement domain.Settlement
	if err := json.Unmarshal(entry.Payload, &settlement); err != nil {
		log.Error().Err(err).Int64("outbox_id", entry.ID).Msg("bad outbox payload; resolving to stop retry loop")
		_ = repo.ResolveOutbox(ctx, entry.ID)
		return
	}

	op := func() error {
		_, err := repo.CreateSettlement(ctx, settlement)
		if err != nil && domainPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		next := time.Now().UTC().Add(time.Duration(entry.Attempts+1) * 10 * time.Minute)
		log.Warn().Err(err).
			Int64("outbox_id", entry.ID).
			Time("next_attempt", next).
			Msg("replay failed, rescheduling")
		if rerr := repo.RescheduleOutbox(ctx, entry.ID, entry.Attempts+1, next); rerr != nil {
			log.Error().Err(rerr).Int64("outbox_id", entry.ID).Msg("reschedule failed")
		}
		return
	}

	if err := repo.ResolveOutbox(ctx, entry.ID); err != nil {
		log.Error().Err(err).Int64("outbox_id", entry.ID).Msg("resolve failed")
		return
	}
	log.Info().Int64("outbox_id", entry.ID).Str("kind", entry.Kind).Msg("settlement reconciled")
}

// domainPermanent marks errors retrying cannot fix. A room conflict on
// replay means a competing booking confirmed meanwhile; the entry then
// represents an orphan capture and stays visible until handled.
func domainPermanent(err error) bool {
	return errors.Is(err, domain.ErrRoomUnavailable) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation)
}
