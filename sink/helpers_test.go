package sink

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
)

type ledger interface {
	Debit(amount int) (int, error)
}

type ledgerAccount struct{ balance int }

func (a *ledgerAccount) Debit(amount int) (int, error) {
	a.balance -= amount
	return a.balance, nil
}

func accountEvent(t *testing.T) audit.Event {
	t.Helper()
	acct := &ledgerAccount{balance: 100}
	ev, err := audit.NewBuilder().Build(context.Background(), audit.On[ledger](acct, "Debit", 40), 60, nil, 0)
	require.NoError(t, err)
	return ev
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger() (*slog.Logger, *lockedBuffer) {
	buf := &lockedBuffer{}
	return slog.New(slog.NewJSONHandler(buf, nil)), buf
}
