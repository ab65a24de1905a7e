package http

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/openeeap/nmtrl/internal/api/http/handler"
	"github.com/openeeap/nmtrl/internal/api/http/middleware"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/metrics"
	"github.com/openeeap/nmtrl/internal/observability/trace"
)

// RouterOptions 路由器依赖
type RouterOptions struct {
	Handler     *handler.StatusHandler
	Metrics     *metrics.MetricsCollector
	Logger      logging.Logger
	Tracer      trace.Tracer
	EnablePprof bool

	// RateLimit 每个客户端每秒请求数，0 表示不限流
	RateLimit float64

	// AllowOrigins 允许跨域访问的来源，为空时不启用 CORS
	AllowOrigins []string

	// JWTSecret 非空时 /api 需要 Bearer 令牌
	JWTSecret string
}

// NewRouter 创建状态服务的 Gin 引擎
func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoopLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.NewNoopTracer()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// 全局中间件链
	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Trace(opts.Tracer),
		middleware.Log(opts.Logger),
	)

	if len(opts.AllowOrigins) > 0 {
		engine.Use(middleware.CORS(opts.AllowOrigins))
	}

	h := opts.Handler

	// 健康检查和基础路由
	engine.GET("/", h.Root)
	health := engine.Group("/health")
	{
		health.GET("/live", h.Live)
		health.GET("/ready", h.Ready)
	}

	// 指标（Prometheus）
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	// API v1 路由
	v1 := engine.Group("/api/v1")
	if opts.RateLimit > 0 {
		v1.Use(middleware.RateLimit(rate.Limit(opts.RateLimit), max(int(opts.RateLimit), 1)))
	}
	if opts.JWTSecret != "" {
		v1.Use(middleware.Auth(opts.JWTSecret))
	}
	{
		v1.GET("/status", h.Current)
		v1.GET("/runs", h.ListRuns)
		v1.GET("/runs/:id", h.GetRun)
		v1.GET("/runs/:id/checkpoints", h.RunCheckpoints)
		v1.GET("/checkpoints", h.StoredCheckpoints)
	}

	// 调试路由
	if opts.EnablePprof {
		pprof.Register(engine)
	}
	return engine
}

//Personal.AI order the ending
