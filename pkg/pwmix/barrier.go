package pwmix

import (
	"fmt"

	"go.uber.org/zap"
)

// syncer is the slice of the pw client the barrier needs
type syncer interface {
	Sync() (int32, error)
}

// syncBarrier tracks the single outstanding sync round-trip used to
// establish that the graph snapshot is complete. The daemon delivers
// events in order per connection, so once the done notification for
// our sequence number arrives, every global announced before the sync
// request has already passed through the graph watcher.
type syncBarrier struct {
	logger *zap.SugaredLogger

	pending    bool
	pendingSeq int32
}

func newSyncBarrier(logger *zap.SugaredLogger) *syncBarrier {
	return &syncBarrier{logger: logger.Named("barrier")}
}

// raise issues the sync request and records its sequence number as the
// pending marker. A rejected sync is a fatal bootstrap failure.
func (b *syncBarrier) raise(client syncer) error {
	seq, err := client.Sync()
	if err != nil {
		return fmt.Errorf("request core sync: %w", err)
	}

	b.pending = true
	b.pendingSeq = seq

	b.logger.Debugw("Raised completion barrier", "seq", seq)

	return nil
}

// satisfied reports whether a done notification matches the pending
// marker, clearing it on the first exact match
func (b *syncBarrier) satisfied(seq int32) bool {
	if !b.pending || seq != b.pendingSeq {
		return false
	}

	b.pending = false
	b.logger.Debugw("Completion barrier satisfied", "seq", seq)

	return true
}
