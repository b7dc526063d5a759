package grpc

import (
	"context"
	"io"
	"log"
	"net"
	"sync/atomic"
	"testing"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeSource struct {
	running atomic.Bool
}

func (f *fakeSource) IsRunning() bool { return f.running.Load() }

func startHealth(t *testing.T, source StatusSource) (*HealthServer, healthpb.HealthClient) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	h := NewHealthServer("xarena.Arena", source, 5*time.Millisecond, log.New(io.Discard, "", 0))
	go func() { _ = h.Serve(lis) }()
	t.Cleanup(h.Stop)

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return h, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServer_FollowsScheduler(t *testing.T) {
	source := &fakeSource{}
	_, client := startHealth(t, source)

	if got := check(t, client, "xarena.Arena"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("до запуска: %v", got)
	}

	source.running.Store(true)

	// Опрос источника периодический
	deadline := time.Now().Add(2 * time.Second)
	for check(t, client, "xarena.Arena") != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatal("статус не стал SERVING")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := check(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("общий статус: %v", got)
	}
}

func TestHealthServer_Refresh(t *testing.T) {
	source := &fakeSource{}
	source.running.Store(true)
	h, client := startHealth(t, source)

	if got := check(t, client, "xarena.Arena"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("статус %v", got)
	}

	source.running.Store(false)
	if got := h.Refresh(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Refresh = %v", got)
	}
	if got := check(t, client, "xarena.Arena"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("после остановки: %v", got)
	}
}
