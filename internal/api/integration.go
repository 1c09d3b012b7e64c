package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/annel0/shard-realms/internal/logging"
)

// ServerIntegration HTTP сервер поверх RestServer с плавной остановкой
type ServerIntegration struct {
	restServer *RestServer
	httpServer *http.Server
	errCh      chan error
	running    atomic.Bool
	logger     *logging.Logger
}

// NewServerIntegration готовит http.Server на addr (например ":8080")
func NewServerIntegration(rs *RestServer, addr string) *ServerIntegration {
	return &ServerIntegration{
		restServer: rs,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           rs.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		errCh:  make(chan error, 1),
		logger: logging.GetServerLogger(),
	}
}

// Start запускает сервер в отдельной горутине
func (si *ServerIntegration) Start() {
	si.running.Store(true)
	go func() {
		defer si.running.Store(false)
		if err := si.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			si.logger.Error("❌ Ошибка REST API сервера: %v", err)
			si.errCh <- err
		}
	}()

	si.logger.Info("✅ REST API сервер запущен на %s", si.httpServer.Addr)
	si.logger.Info("📋 Эндпоинты: /api/auth/*, /api/worlds/*, /api/achievements, /cable, /health, /metrics")
}

// Errors ошибки ListenAndServe, кроме штатной остановки
func (si *ServerIntegration) Errors() <-chan error {
	return si.errCh
}

// IsHealthy сервер принимает соединения
func (si *ServerIntegration) IsHealthy() bool {
	return si.running.Load()
}

// Stop плавная остановка: открытые запросы дорабатывают до дедлайна ctx
func (si *ServerIntegration) Stop(ctx context.Context) error {
	si.logger.Info("🛑 Остановка REST API сервера...")
	if err := si.httpServer.Shutdown(ctx); err != nil {
		si.logger.Error("❌ Ошибка при остановке HTTP сервера: %v", err)
		return err
	}
	si.logger.Info("✅ REST API сервер остановлен")
	return nil
}
