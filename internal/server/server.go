package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/nftcheckout/internal/audit"
	auditdomain "github.com/smallbiznis/nftcheckout/internal/audit/domain"
	"github.com/smallbiznis/nftcheckout/internal/auth"
	authdomain "github.com/smallbiznis/nftcheckout/internal/auth/domain"
	"github.com/smallbiznis/nftcheckout/internal/auth/session"
	"github.com/smallbiznis/nftcheckout/internal/authorization"
	"github.com/smallbiznis/nftcheckout/internal/catalog"
	"github.com/smallbiznis/nftcheckout/internal/checkout"
	checkoutdomain "github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"github.com/smallbiznis/nftcheckout/internal/delivery"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	"github.com/smallbiznis/nftcheckout/internal/events"
	"github.com/smallbiznis/nftcheckout/internal/lead"
	leaddomain "github.com/smallbiznis/nftcheckout/internal/lead/domain"
	"github.com/smallbiznis/nftcheckout/internal/ledger"
	ledgerdomain "github.com/smallbiznis/nftcheckout/internal/ledger/domain"
	"github.com/smallbiznis/nftcheckout/internal/observability"
	obsmiddleware "github.com/smallbiznis/nftcheckout/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	obstracing "github.com/smallbiznis/nftcheckout/internal/observability/tracing"
	"github.com/smallbiznis/nftcheckout/internal/payment"
	"github.com/smallbiznis/nftcheckout/internal/providers"
	"github.com/smallbiznis/nftcheckout/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domain wires every business module the HTTP server and the CLI share.
var Domain = fx.Options(
	payment.Module,
	catalog.Module,
	events.Module,
	providers.Module,
	ledger.Module,
	lead.Module,
	delivery.Module,
	checkout.Module,
	ratelimit.Module,
	auth.Module,
	authorization.Module,
	audit.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	checkoutSvc checkoutdomain.Service
	deliverySvc deliverydomain.Service
	ledgerSvc   ledgerdomain.Service
	leadSvc     leaddomain.Service
	authsvc     authdomain.Service
	sessions    *session.Manager
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	limiter     ratelimit.Limiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	CheckoutSvc checkoutdomain.Service
	DeliverySvc deliverydomain.Service
	LedgerSvc   ledgerdomain.Service
	LeadSvc     leaddomain.Service
	Authsvc     authdomain.Service
	Sessions    *session.Manager
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service `optional:"true"`
	Limiter     ratelimit.Limiter   `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http"),
		checkoutSvc: p.CheckoutSvc,
		deliverySvc: p.DeliverySvc,
		ledgerSvc:   p.LedgerSvc,
		leadSvc:     p.LeadSvc,
		authsvc:     p.Authsvc,
		sessions:    p.Sessions,
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerPaymentRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")

	// -------- Webhooks --------
	payments.POST("/webhooks/:gateway", s.HandlePaymentWebhook)

	// -------- PayPal --------
	payments.POST("/paypal/orders", s.RateLimit("paypal_orders"), s.CreatePayPalOrder)
	payments.POST("/paypal/orders/:orderId/capture", s.RateLimit("paypal_capture"), s.CapturePayPalOrder)

	// -------- Razorpay --------
	payments.POST("/razorpay/orders", s.RateLimit("razorpay_orders"), s.CreateRazorpayOrder)
	payments.POST("/razorpay/verify", s.RateLimit("razorpay_verify"), s.VerifyRazorpayPayment)

	payments.GET("/:gateway/transactions/:txnId/status", s.GetTransactionStatus)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/sessions", s.RateLimit("admin_login"), s.Login)
	admin.DELETE("/sessions", s.Logout)

	authed := admin.Group("", s.AuthRequired())
	{
		authed.GET("/deliveries", s.authorize(authorization.ObjectDelivery, authorization.ActionDeliveryView), s.ListDeliveries)
		authed.GET("/deliveries/:id", s.authorize(authorization.ObjectDelivery, authorization.ActionDeliveryView), s.GetDelivery)
		authed.POST("/deliveries/:id/retry", s.authorize(authorization.ObjectDelivery, authorization.ActionDeliveryRetry), s.RetryDelivery)

		authed.GET("/transactions", s.authorize(authorization.ObjectTransaction, authorization.ActionTransactionView), s.ListTransactions)
		authed.GET("/transactions/:gateway/:txnId", s.authorize(authorization.ObjectTransaction, authorization.ActionTransactionView), s.GetTransaction)
		authed.POST("/transactions/:gateway/:txnId/reconcile", s.authorize(authorization.ObjectTransaction, authorization.ActionTransactionReconcile), s.ReconcileTransaction)

		authed.GET("/leads/:email", s.authorize(authorization.ObjectLead, authorization.ActionLeadView), s.GetLead)

		authed.GET("/stats", s.authorize(authorization.ObjectStats, authorization.ActionStatsView), s.GetStats)

		authed.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
	}
}
