package health

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T, probe Probe) (*Server, healthpb.HealthClient) {
	t.Helper()
	srv := NewServer(probe)
	t.Cleanup(srv.Stop)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(lis)

	conn, err := grpc.Dial(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_FollowsProbe(t *testing.T) {
	var alive atomic.Bool
	srv, client := startServer(t, alive.Load)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	alive.Store(true)
	srv.Refresh()
	assert.True(t, srv.Serving())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))

	alive.Store(false)
	srv.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))
}

func TestServer_Watch(t *testing.T) {
	var alive atomic.Bool
	alive.Store(true)
	srv, client := startServer(t, alive.Load)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Watch(ctx, 5*time.Millisecond)

	assert.Eventually(t, srv.Serving, time.Second, 5*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	alive.Store(false)
	assert.Eventually(t, func() bool { return !srv.Serving() }, time.Second, 5*time.Millisecond)

	cancel()
	srv.watchers.Wait()
	assert.False(t, srv.Serving())
}

func TestServer_NilProbe(t *testing.T) {
	srv := NewServer(nil)
	srv.Refresh()
	assert.False(t, srv.Serving())
	srv.Stop()
}
