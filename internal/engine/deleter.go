package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-autoreply-bot/internal/domain"
	"github.com/lueurxax/telegram-autoreply-bot/internal/observability"
)

const deleteCallTimeout = 30 * time.Second

// Deleter schedules deferred deletions of sent messages. Tasks are detached
// from the invocation that scheduled them: they keep running after the
// invocation completes and even after the owning account disconnects, in
// which case the delete call fails and is only logged.
//
// Pending deletions are in-process only; a restart loses them. A durable
// delayed queue would need its own table and reaper, which this deliberately
// does not have yet.
type Deleter struct {
	logger *zerolog.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]struct{}
	wg      sync.WaitGroup
}

func NewDeleter(logger *zerolog.Logger) *Deleter {
	return &Deleter{
		logger:  logger,
		pending: make(map[uint64]struct{}),
	}
}

// Schedule registers a deferred deletion of messageID after the given
// duration. Returns immediately; the caller is never blocked.
func (d *Deleter) Schedule(transport Transport, chat domain.Chat, messageID int, after time.Duration) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.pending[id] = struct{}{}
	d.mu.Unlock()

	observability.PendingDeletions.Inc()
	d.wg.Add(1)

	go d.run(id, transport, chat, messageID, after)
}

func (d *Deleter) run(id uint64, transport Transport, chat domain.Chat, messageID int, after time.Duration) {
	defer d.wg.Done()
	defer observability.PendingDeletions.Dec()

	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	time.Sleep(after)

	ctx, cancel := context.WithTimeout(context.Background(), deleteCallTimeout)
	defer cancel()

	if err := transport.DeleteMessage(ctx, chat, messageID); err != nil {
		d.logger.Debug().Err(err).
			Int64("chat_id", chat.ID).
			Int("message_id", messageID).
			Msg("scheduled deletion failed")

		return
	}

	d.logger.Debug().
		Int64("chat_id", chat.ID).
		Int("message_id", messageID).
		Msg("auto-deleted message")
}

// PendingCount returns the number of deletions not yet executed.
func (d *Deleter) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.pending)
}

// Drain waits for all pending deletions to finish. Test helper; production
// shutdown does not wait for them.
func (d *Deleter) Drain() {
	d.wg.Wait()
}
