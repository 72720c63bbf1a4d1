package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/logger"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/tracing"
	"github.com/smallbiznis/productdesk/internal/ui"
	"github.com/smallbiznis/productdesk/internal/ui/render"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sseRetry     = "retry: 2000\n\n"
	sseHeartbeat = 15 * time.Second
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log, logger.MiddlewareConfig{
		Debug:           !cfg.IsProduction(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(tracing.GinMiddleware(nil))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	productSvc domain.Service
	sessions   *ui.Registry
	renderer   *render.Renderer
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB `optional:"true"`
	Log        *zap.Logger
	ProductSvc domain.Service
	Sessions   *ui.Registry
	Renderer   *render.Renderer
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("http"),
		productSvc: p.ProductSvc,
		sessions:   p.Sessions,
		renderer:   p.Renderer,
	}

	svc.engine.GET("/health", svc.Health)
	svc.registerUIRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerUIRoutes() {
	s.engine.GET("/", s.Index)
	s.engine.GET("/events", s.StreamView)
	s.engine.POST("/form", s.SubmitForm)
	s.engine.POST("/form/edit/:id", s.EditForm)
	s.engine.POST("/form/cancel", s.CancelForm)
	s.engine.POST("/products/:id/delete", s.DeleteFromTable)
	s.engine.POST("/filter", s.ApplyFilter)
	s.engine.POST("/notices/:id/dismiss", s.DismissNotice)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	products := api.Group("/products")
	products.GET("", s.ListProducts)
	products.POST("", s.CreateProduct)
	products.GET("/stats", s.ProductStats)
	products.GET("/stream", s.StreamProducts)
	products.GET("/:id", s.GetProductByID)
	products.PUT("/:id", s.UpdateProduct)
	products.DELETE("/:id", s.DeleteProduct)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) Health(c *gin.Context) {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
