package grpc

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DefaultRefreshInterval период опроса состояния планировщика
const DefaultRefreshInterval = time.Second

// StatusSource источник состояния (планировщик)
type StatusSource interface {
	IsRunning() bool
}

// HealthServer gRPC сервис здоровья: SERVING, пока работает планировщик
type HealthServer struct {
	server      *grpclib.Server
	health      *health.Server
	source      StatusSource
	serviceName string
	interval    time.Duration
	logger      *log.Logger

	mu       sync.Mutex
	status   healthpb.HealthCheckResponse_ServingStatus
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHealthServer создает сервер здоровья для serviceName
func NewHealthServer(serviceName string, source StatusSource, interval time.Duration, logger *log.Logger) *HealthServer {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	h := &HealthServer{
		server:      grpclib.NewServer(),
		health:      health.NewServer(),
		source:      source,
		serviceName: serviceName,
		interval:    interval,
		logger:      logger,
		status:      healthpb.HealthCheckResponse_UNKNOWN,
		stop:        make(chan struct{}),
	}

	healthpb.RegisterHealthServer(h.server, h.health)
	reflection.Register(h.server)
	h.Refresh()

	return h
}

// Refresh переносит состояние источника в сервис здоровья
func (h *HealthServer) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.source.IsRunning() {
		status = healthpb.HealthCheckResponse_SERVING
	}

	h.mu.Lock()
	changed := status != h.status
	h.status = status
	h.mu.Unlock()

	if changed {
		h.health.SetServingStatus("", status)
		h.health.SetServingStatus(h.serviceName, status)
		h.logger.Printf("[HealthServer] Статус %s: %s", h.serviceName, status)
	}
	return status
}

// Serve обслуживает lis до Stop
func (h *HealthServer) Serve(lis net.Listener) error {
	go h.watch()

	h.logger.Printf("[HealthServer] gRPC health на %s", lis.Addr())
	if err := h.server.Serve(lis); err != nil && !errors.Is(err, grpclib.ErrServerStopped) {
		return err
	}
	return nil
}

func (h *HealthServer) watch() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.Refresh()
		}
	}
}

// Stop переводит все сервисы в NOT_SERVING и останавливает сервер
func (h *HealthServer) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.health.Shutdown()
		h.server.GracefulStop()
	})
}
