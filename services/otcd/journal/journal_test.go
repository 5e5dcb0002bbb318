package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"otcpool/core/types"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j, err := New(db, nil, func() time.Time { return now })
	require.NoError(t, err)
	return j
}

type payloadEvent struct{ evt *types.Event }

func (p payloadEvent) EventType() string   { return p.evt.Type }
func (p payloadEvent) Event() *types.Event { return p.evt }

func TestAppendBuildsHashChain(t *testing.T) {
	j := setupJournal(t)
	var observed []uint64
	j.Subscribe(func(r EventRecord) { observed = append(observed, r.Sequence) })

	first, err := j.Append(context.Background(), &types.Event{Type: "otc.offer.created", Attributes: map[string]string{"maker": "otc1a"}})
	require.NoError(t, err)
	j.Emit(payloadEvent{evt: &types.Event{Type: "otc.offer.executed", Attributes: map[string]string{"fee": "24"}}})

	records, err := j.Events(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(1), first.Sequence)
	require.Empty(t, records[0].PrevHash)
	require.Equal(t, records[0].Hash, records[1].PrevHash)
	require.Equal(t, []uint64{1, 2}, observed)

	attrs, err := records[1].Decode()
	require.NoError(t, err)
	require.Equal(t, "24", attrs["fee"])

	seq, head := j.Head()
	require.Equal(t, uint64(2), seq)
	require.Equal(t, records[1].Hash, head)
	require.NoError(t, j.Verify(context.Background()))

	page, err := j.Events(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
}

func TestVerifyDetectsTampering(t *testing.T) {
	j := setupJournal(t)
	for i := 0; i < 3; i++ {
		_, err := j.Append(context.Background(), &types.Event{Type: "otc.pool.paused", Attributes: map[string]string{"i": fmt.Sprint(i)}})
		require.NoError(t, err)
	}
	require.NoError(t, j.DB().Model(&EventRecord{}).Where("sequence = ?", 2).Update("attributes", `{"i":"9"}`).Error)
	require.ErrorIs(t, j.Verify(context.Background()), ErrChainBroken)
}

func TestReopenResumesChain(t *testing.T) {
	j := setupJournal(t)
	_, err := j.Append(context.Background(), &types.Event{Type: "otc.pool.paused"})
	require.NoError(t, err)

	reopened, err := New(j.DB(), nil, nil)
	require.NoError(t, err)
	record, err := reopened.Append(context.Background(), &types.Event{Type: "otc.pool.resumed"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), record.Sequence)
	require.NoError(t, reopened.Verify(context.Background()))
}

func TestNonceSingleUse(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	require.NoError(t, j.UseNonce(ctx, "otc1a", "n-1"))
	require.ErrorIs(t, j.UseNonce(ctx, "otc1a", "n-1"), ErrNonceReused)
	require.NoError(t, j.UseNonce(ctx, "otc1b", "n-1"))

	pruned, err := j.PruneNonces(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(2), pruned)
	require.NoError(t, j.UseNonce(ctx, "otc1a", "n-1"))
}

func TestIdempotencyRecords(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	_, ok, err := j.LookupIdempotent(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, j.SaveIdempotent(ctx, IdempotencyRecord{Key: "k1", Method: "POST", Path: "/v1/offers", Status: 201, Response: `{"ok":true}`}))
	require.NoError(t, j.SaveIdempotent(ctx, IdempotencyRecord{Key: "k1", Method: "POST", Path: "/v1/offers", Status: 500, Response: "ignored"}))

	record, ok, err := j.LookupIdempotent(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 201, record.Status)
	require.NotEmpty(t, record.RequestID)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	require.Error(t, err)
}
