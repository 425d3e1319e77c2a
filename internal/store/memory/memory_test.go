package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"learnhub.dev/internal/security"
)

func TestRollbackKeepsConcurrentWritesAndHidesUncommitted(t *testing.T) {
	ctx := context.Background()
	store := New()
	inside := make(chan struct{})
	proceed := make(chan struct{})
	boom := errors.New("boom")

	txDone := make(chan error, 1)
	go func() {
		txDone <- store.WithTx(ctx, func(tx security.Store) error {
			if err := tx.Identities(ctx).Create(ctx, &security.Identity{Name: "alice", Status: security.StatusActive}); err != nil {
				return err
			}
			close(inside)
			<-proceed
			return boom
		})
	}()
	<-inside

	writeDone := make(chan error, 1)
	go func() {
		writeDone <- store.Identities(ctx).Create(ctx, &security.Identity{Name: "bob", Status: security.StatusActive})
	}()
	readDone := make(chan error, 1)
	go func() {
		_, err := store.Identities(ctx).FindByName(ctx, "alice")
		readDone <- err
	}()

	select {
	case <-writeDone:
		t.Fatal("write completed while a transaction was open")
	case <-readDone:
		t.Fatal("read completed while a transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(proceed)
	require.ErrorIs(t, <-txDone, boom)
	require.NoError(t, <-writeDone)
	require.ErrorIs(t, <-readDone, security.ErrNotFound)

	_, err := store.Identities(ctx).FindByName(ctx, "alice")
	require.ErrorIs(t, err, security.ErrNotFound)
	bob, err := store.Identities(ctx).FindByName(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", bob.Name)
}

func TestCommitAndNestedTx(t *testing.T) {
	ctx := context.Background()
	store := New()

	err := store.WithTx(ctx, func(tx security.Store) error {
		group := &security.Group{CreatedAt: time.Now()}
		if err := tx.Groups(ctx).Create(ctx, group); err != nil {
			return err
		}
		return tx.WithTx(ctx, func(inner security.Store) error {
			return inner.Groups(ctx).Bind(ctx, "staff", group.ID)
		})
	})
	require.NoError(t, err)

	group, err := store.Groups(ctx).FindByName(ctx, "staff")
	require.NoError(t, err)
	require.NotEmpty(t, group.ID)
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().WithTx(ctx, func(security.Store) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
