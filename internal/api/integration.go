package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// HTTPServer управляет жизненным циклом REST API поверх net/http
type HTTPServer struct {
	rest       *RestServer
	httpServer *http.Server
	errCh      chan error
}

// NewHTTPServer оборачивает RestServer в http.Server с таймаутами.
func NewHTTPServer(rest *RestServer) *HTTPServer {
	return &HTTPServer{
		rest: rest,
		httpServer: &http.Server{
			Addr:              rest.port,
			Handler:           rest.router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errCh: make(chan error, 1),
	}
}

// Start открывает порт и обслуживает запросы в отдельной горутине.
func (s *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve обслуживает уже открытый listener в отдельной горутине.
func (s *HTTPServer) Serve(lis net.Listener) error {
	log := s.rest.log
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("❌ Ошибка REST API сервера: %v", err)
			s.errCh <- err
		}
	}()

	log.Info("✅ REST API сервер запущен на http://%s", lis.Addr())
	log.Info("📋 Доступные эндпоинты:")
	log.Info("   GET  /health            - Проверка состояния")
	log.Info("   GET  /metrics           - Prometheus")
	log.Info("   GET  /api/state         - Снимок башни")
	log.Info("   GET  /api/best          - Лучший результат")
	log.Info("   GET  /api/rounds        - История раундов")
	log.Info("   GET  /api/server        - Информация о сервере")
	log.Info("   POST /api/auth/login    - Вход оператора")
	log.Info("   POST /api/round|drop|pause|resume|release - Управление (требует JWT)")
	return nil
}

// Errors возвращает канал фатальных ошибок сервера.
func (s *HTTPServer) Errors() <-chan error { return s.errCh }

// Stop останавливает сервер, дожидаясь завершения активных запросов.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.rest.log.Info("🛑 Остановка REST API сервера...")
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.rest.log.Error("❌ Ошибка при остановке HTTP сервера: %v", err)
		return err
	}
	s.rest.log.Info("✅ REST API сервер остановлен")
	return nil
}
