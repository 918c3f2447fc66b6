package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alma806-mvk/automated-invoice-creation-agent/internal/model"
)

func TestEventOutbox(t *testing.T) {
	r, ctx := newTestRepo(t)

	for _, number := range []string{"INV-1", "INV-2"} {
		require.NoError(t, r.CreateLedgerEvent(ctx, r.DB(ctx), &model.LedgerEvent{
			EventID:       number + "-evt",
			InvoiceNumber: number,
			EventType:     model.EventInvoiceStored,
			Payload:       "{}",
		}))
	}

	events, err := r.PollEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, r.MarkEventProcessed(ctx, events[0].ID))

	remaining, err := r.PollEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, events[1].ID, remaining[0].ID)
}

func TestOutboxSurfacesStorageErrors(t *testing.T) {
	r, ctx := newTestRepo(t)

	require.NoError(t, r.DB(ctx).Migrator().DropTable(&model.LedgerEvent{}))

	_, err := r.PollEvents(ctx, 10)
	assert.ErrorIs(t, err, ErrStorage)

	err = r.MarkEventProcessed(ctx, 1)
	assert.ErrorIs(t, err, ErrStorage)
}
