package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartRequiresAtLeastOneReadableFile(t *testing.T) {
	_, _, err := Start(context.Background(), []Instruction{
		{ID: "missing", Path: "/no/such/file", Interval: time.Millisecond},
	})
	require.Error(t, err)
}

func TestStartTailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events, err := Start(ctx, []Instruction{
		{ID: "app", Path: path, Interval: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("first line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-events:
		require.Nil(t, ev.Err)
		require.Equal(t, "first line", ev.Line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tailed line")
	}
}

func TestChannelClosesOnceAllFilesRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	_, events, err := Start(ctx, []Instruction{
		{ID: "app", Path: path, Interval: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
