package health

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/annel0/tower-stack/internal/logging"
)

// ServiceName — имя сервиса в grpc_health_v1. Пустое имя описывает
// сервер целиком и получает тот же статус.
const ServiceName = "tower.Session"

// Probe сообщает, жива ли игровая сессия.
type Probe func() bool

// Server — gRPC-сервер со стандартным health-сервисом.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	probe  Probe
	log    *logging.Logger

	mu       sync.Mutex
	serving  bool
	stop     chan struct{}
	stopOnce sync.Once
	watchers sync.WaitGroup
}

// NewServer создаёт сервер; статус по умолчанию NOT_SERVING.
func NewServer(probe Probe) *Server {
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		probe:  probe,
		log:    logging.For(logging.ComponentHealth),
		stop:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.set(false)
	return s
}

func (s *Server) set(serving bool) {
	s.mu.Lock()
	changed := s.serving != serving
	s.serving = serving
	s.mu.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	if changed {
		s.log.Info("💓 Статус сессии: %s", status)
	}
}

// Serving возвращает последний выставленный статус.
func (s *Server) Serving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

// Refresh опрашивает probe и обновляет статус.
func (s *Server) Refresh() {
	s.set(s.probe != nil && s.probe())
}

// Watch опрашивает probe каждые interval, пока не вызван Stop или не отменён ctx.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.watchers.Add(1)
	defer s.watchers.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Serve блокируется, обслуживая lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("🩺 gRPC health слушает %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// ListenAndServe открывает TCP-порт и обслуживает его.
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop переводит статус в NOT_SERVING и останавливает сервер.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.watchers.Wait()
	s.set(false)
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
