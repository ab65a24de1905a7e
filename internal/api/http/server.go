package http

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Server 状态服务
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger
}

// NewServer 创建状态服务
func NewServer(cfg config.StatusConfig, engine *gin.Engine, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: timeout,
		logger:          logger,
	}
}

// Run 监听并服务，直到 ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.WrapInternalError(err, errors.CodeInternalError, "failed to listen on "+s.srv.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定监听器上服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", logging.String("addr", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WrapInternalError(err, errors.CodeInternalError, "status server failed")
	case <-ctx.Done():
	}

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Status server forced to shutdown", logging.Error(err))
		return errors.WrapInternalError(err, errors.CodeInternalError, "status server shutdown failed")
	}
	s.logger.Info("Status server stopped")
	return nil
}

//Personal.AI order the ending
