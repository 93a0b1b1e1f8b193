package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/notesync/internal/client/localdb"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) ScheduleSync() { c.n.Add(1) }

// clock hands out strictly increasing instants.
type clock struct {
	sec int
}

func (c *clock) now() string {
	c.sec++
	return fmt.Sprintf("2024-01-01T00:00:%02d.000Z", c.sec%60)
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := localdb.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRecordService(t *testing.T) (*RecordService, *countingNotifier, *clock) {
	t.Helper()
	rs := NewRecordService(setupDB(t), logging.Nop())
	n := &countingNotifier{}
	c := &clock{}
	rs.SetNotifier(n)
	rs.now = c.now
	return rs, n, c
}
