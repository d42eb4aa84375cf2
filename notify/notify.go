// Package notify implements the event-subscription surface consensus
// and state-sync attach to in order to observe freshly committed
// ledger infos: a one-to-many broadcast with a durable per-subscriber
// watermark, so a restarted subscriber resumes where it left off
// instead of re-observing the whole history.
package notify

import (
	"context"
	"fmt"

	"github.com/bobg/multichan"
	"github.com/bobg/sqlutil"
	"github.com/chain/txvm/errors"

	"ledgercore/blockexec/storage"
)

// Broadcaster is the writing end the block executor pushes newly
// committed ledger infos into after every successful commit_blocks.
type Broadcaster struct {
	w *multichan.W
}

// NewBroadcaster returns a Broadcaster ready to accept Publish calls.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{w: multichan.New((*storage.LedgerInfoWithSignatures)(nil))}
}

// Publish fans li out to every active subscriber.
func (b *Broadcaster) Publish(li *storage.LedgerInfoWithSignatures) {
	b.w.Write(li)
}

// Close shuts down the broadcast; subscribers in their replay loop
// will see it end.
func (b *Broadcaster) Close() {
	b.w.Close()
}

// DB is the subset of *sql.DB Subscribe needs for its durable
// watermark.
type DB interface {
	sqlutil.DB
}

// Subscribe runs as a goroutine: it reads name's durable watermark
// from the subscriptions table, replays the latest ledger info storage
// already has if it is at or above that watermark (earlier ones are
// not replayed), then blocks on the broadcaster
// for new ones, calling handler once per ledger info in order. It
// returns when ctx is canceled or handler returns a non-nil error;
// the error (if any) is sent once on the returned channel.
func Subscribe(ctx context.Context, db DB, adapter storage.Adapter, b *Broadcaster, name string, handler func(context.Context, *storage.LedgerInfoWithSignatures) error) <-chan error {
	errc := make(chan error, 1)
	go func() {
		errc <- runSubscription(ctx, db, adapter, b, name, handler)
	}()
	return errc
}

func runSubscription(ctx context.Context, db DB, adapter storage.Adapter, b *Broadcaster, name string, handler func(context.Context, *storage.LedgerInfoWithSignatures) error) error {
	r := b.w.Reader()

	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO subscriptions (name, height) VALUES (?, 0)`, name)
	if err != nil {
		return errors.Wrapf(err, "registering subscription %s", name)
	}

	// height holds the next version this subscription has not yet
	// seen (not the last one it has), so a fresh subscription starts
	// at 0 with no ambiguity against a real version-0 ledger info.
	var nextVersion uint64
	err = db.QueryRowContext(ctx, `SELECT height FROM subscriptions WHERE name = ?`, name).Scan(&nextVersion)
	if err != nil {
		return errors.Wrapf(err, "reading subscription watermark %s", name)
	}

	process := func(li *storage.LedgerInfoWithSignatures) error {
		if li.LedgerInfo.Version < nextVersion {
			return nil
		}
		if err := handler(ctx, li); err != nil {
			return errors.Wrapf(err, "running subscription %s at version %d", name, li.LedgerInfo.Version)
		}
		nextVersion = li.LedgerInfo.Version + 1
		_, err := db.ExecContext(ctx, `UPDATE subscriptions SET height = ? WHERE name = ?`, nextVersion, name)
		if err != nil {
			return errors.Wrapf(err, "updating subscription watermark %s", name)
		}
		return nil
	}

	synced, err := adapter.FetchSyncedVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching synced version")
	}
	if synced+1 > nextVersion {
		li, found, err := adapter.GetLatestLedgerInfo(ctx)
		if err != nil {
			return errors.Wrap(err, "reading latest ledger info during replay")
		}
		if found {
			if err := process(li); err != nil {
				return err
			}
		}
	}

	for {
		x, ok := r.Read(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscription %s: broadcaster closed", name)
		}
		li, ok := x.(*storage.LedgerInfoWithSignatures)
		if !ok || li == nil {
			continue
		}
		if err := process(li); err != nil {
			return err
		}
	}
}
