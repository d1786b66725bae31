package journal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlorentDgrs/Dvoting/internal/app"
	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	voter1 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	voter2 = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	ev := domain.NewEvent(domain.EventVoted, 1, &domain.VotedPayload{Voter: voter1, ProposalID: 2})
	ev.Seq = 1

	require.NoError(t, j.Append(ctx, "ledger-a", ev))
	// Same seq again is ignored
	require.NoError(t, j.Append(ctx, "ledger-a", ev))

	records, err := j.List(ctx, "ledger-a", 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, uint64(1), rec.Seq)
	assert.Equal(t, uint64(1), rec.Round)
	assert.Equal(t, domain.EventVoted, rec.Type)
	assert.WithinDuration(t, ev.Timestamp, rec.Timestamp, time.Millisecond)

	var payload domain.VotedPayload
	require.NoError(t, json.Unmarshal(rec.Payload, &payload))
	assert.Equal(t, voter1, payload.Voter)
	assert.Equal(t, uint64(2), payload.ProposalID)

	other, err := j.List(ctx, "ledger-b", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	last, err := j.LastSeq(ctx, "ledger-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)

	last, err = j.LastSeq(ctx, "ledger-b")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, CreateSchema(context.Background(), j.db))
}

func TestRunFollowsLedger(t *testing.T) {
	j := openTestJournal(t)

	ledger := app.NewLedger(admin, 10, testLogger())
	defer ledger.Close()

	// Logged before the journal starts following
	_, err := ledger.RegisterVoter(admin, voter1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- j.Run(ctx, ledger)
	}()

	_, err = ledger.RegisterVoter(admin, voter2)
	require.NoError(t, err)
	_, err = ledger.StartProposalsRegistering(admin)
	require.NoError(t, err)
	_, err = ledger.Reset(admin)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		last, err := j.LastSeq(context.Background(), ledger.ID())
		return err == nil && last == ledger.LastSeq()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	records, err := j.List(context.Background(), ledger.ID(), 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 4)

	types := make([]domain.EventType, 0, len(records))
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Seq)
		types = append(types, rec.Type)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventVoterRegistered,
		domain.EventVoterRegistered,
		domain.EventPhaseChanged,
		domain.EventElectionReset,
	}, types)
	assert.Equal(t, uint64(2), records[3].Round)
}

func TestRunStopsWhenLedgerCloses(t *testing.T) {
	j := openTestJournal(t)
	ledger := app.NewLedger(admin, 10, testLogger())

	done := make(chan error, 1)
	go func() {
		done <- j.Run(context.Background(), ledger)
	}()

	_, err := ledger.RegisterVoter(admin, voter1)
	require.NoError(t, err)

	// Once the registration is archived Run has subscribed
	require.Eventually(t, func() bool {
		last, err := j.LastSeq(context.Background(), ledger.ID())
		return err == nil && last == 1
	}, 2*time.Second, 10*time.Millisecond)

	ledger.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("journal did not stop")
	}
}
