package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/metrics"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// OutcomeLookup 按签名查询终态记录
type OutcomeLookup interface {
	Lookup(ctx context.Context, signature string) (*outcome.Record, error)
}

// HealthFunc 返回附加的健康信息，error 非空时 /healthz 返回 503
type HealthFunc func(ctx context.Context) (map[string]any, error)

// AdminHTTP 运维接口：健康检查、指标、终态查询
type AdminHTTP struct {
	addr       string
	outcomes   OutcomeLookup
	health     HealthFunc
	router     *gin.Engine
	httpServer *http.Server
}

func NewAdminHTTP(addr string, outcomes OutcomeLookup, health HealthFunc) *AdminHTTP {
	gin.SetMode(gin.ReleaseMode)
	a := &AdminHTTP{
		addr:     addr,
		outcomes: outcomes,
		health:   health,
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", a.healthz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	g := router.Group("/v1")
	g.GET("/outcomes/:signature", a.getOutcome)
	a.router = router
	return a
}

func (a *AdminHTTP) Start() {
	a.httpServer = &http.Server{
		Addr:              a.addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("[AdminHTTP] listening on %s", a.addr)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("[AdminHTTP] ListenAndServe: %v", err)
	}
}

func (a *AdminHTTP) Stop() {
	if a.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Warnf("[AdminHTTP] shutdown: %v", err)
	}
	logger.Infof("[AdminHTTP] stopped")
}

func (a *AdminHTTP) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if a.health != nil {
		details, err := a.health(c.Request.Context())
		for k, v := range details {
			body[k] = v
		}
		if err != nil {
			body["status"] = "degraded"
			body["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

func (a *AdminHTTP) getOutcome(c *gin.Context) {
	sig := c.Param("signature")
	if _, err := types.SignatureFromBase58(sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}
	rec, err := a.outcomes.Lookup(c.Request.Context(), sig)
	if err != nil {
		logger.Warnf("[AdminHTTP] lookup %s: %v", sig, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "outcome not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
