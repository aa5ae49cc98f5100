package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"traitors-table/internal/db"
	"traitors-table/internal/store"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const persistTimeout = 5 * time.Second

var nullJSON = datatypes.JSON("null")

// journal copies committed store writes into Postgres in commit order. The
// commit hook only queues; a single worker does the database round trips.
type journal struct {
	db  *gorm.DB
	log zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []store.Change
	busy   bool
	closed bool
}

func newJournal(conn *gorm.DB, log zerolog.Logger) *journal {
	j := &journal{db: conn, log: log.With().Str("component", "journal").Logger()}
	j.cond = sync.NewCond(&j.mu)
	return j
}

func (j *journal) enqueue(change store.Change) {
	if j.db == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.queue = append(j.queue, change)
	j.cond.Broadcast()
}

func (j *journal) run(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	stop := context.AfterFunc(ctx, j.close)
	defer stop()
	for {
		j.mu.Lock()
		for len(j.queue) == 0 && !j.closed {
			j.cond.Wait()
		}
		if len(j.queue) == 0 {
			j.mu.Unlock()
			return nil
		}
		change := j.queue[0]
		j.queue = j.queue[1:]
		j.busy = true
		j.mu.Unlock()

		writeCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := persistChange(writeCtx, j.db, change); err != nil {
			j.log.Error().Err(err).Str("path", change.Path).Int64("rev", change.Rev).Msg("persist change failed")
		}
		cancel()

		j.mu.Lock()
		j.busy = false
		j.cond.Broadcast()
		j.mu.Unlock()
	}
}

func (j *journal) close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	j.cond.Broadcast()
}

// persistChange upserts the node row for the written path, drops the rows it
// superseded below it and appends the event. A delete is kept as a null row so
// a restore replays it over any ancestor value.
func persistChange(ctx context.Context, conn *gorm.DB, change store.Change) error {
	if conn == nil {
		return nil
	}
	deleted := len(change.Value) == 0 || string(change.Value) == "null"
	value := nullJSON
	var payload datatypes.JSON
	if !deleted {
		value = datatypes.JSON(change.Value)
		payload = value
	}
	now := time.Now().UTC()
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if change.Path == "" {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&db.Node{}).Error; err != nil {
				return err
			}
		} else if err := tx.Where("path LIKE ?", escapeLike(change.Path)+"/%").Delete(&db.Node{}).Error; err != nil {
			return err
		}
		node := db.Node{Path: change.Path, Value: value, Rev: change.Rev, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "rev", "updated_at"}),
		}).Create(&node).Error; err != nil {
			return err
		}
		return tx.Create(&db.Event{
			Path:      change.Path,
			Rev:       change.Rev,
			Deleted:   deleted,
			Payload:   payload,
			CreatedAt: now,
		}).Error
	})
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
