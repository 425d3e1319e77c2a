package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type resolverFunc func(ctx context.Context, addr string) ([]string, error)

func (f resolverFunc) LookupAddr(ctx context.Context, addr string) ([]string, error) { return f(ctx, addr) }

func TestHostnameFor(t *testing.T) {
	ctx := context.Background()
	ok := resolverFunc(func(context.Context, string) ([]string, error) { return []string{"host.example."}, nil })
	fail := resolverFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("nxdomain") })
	slow := resolverFunc(func(ctx context.Context, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	require.Equal(t, "host.example", hostnameFor(ctx, ok, "10.1.1.1:80", time.Second))
	require.Equal(t, "10.1.1.1", hostnameFor(ctx, fail, "10.1.1.1:80", time.Second))
	require.Equal(t, "10.1.1.1", hostnameFor(ctx, slow, "10.1.1.1", 10*time.Millisecond))
	require.Equal(t, "10.1.1.1", hostnameFor(ctx, nil, "10.1.1.1:80", time.Second))
}
