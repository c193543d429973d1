package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/hivedeck-monitor/config"
	"github.com/ngenohkevin/hivedeck-monitor/internal/alerts"
	"github.com/ngenohkevin/hivedeck-monitor/internal/cache"
	"github.com/ngenohkevin/hivedeck-monitor/internal/export"
	"github.com/ngenohkevin/hivedeck-monitor/internal/monitor"
	"github.com/ngenohkevin/hivedeck-monitor/internal/system"
)

const redacted = "********"

// Handlers holds all HTTP handlers
type Handlers struct {
	store    *config.Store
	mon      *monitor.Monitor
	auth     *AuthService
	hosts    *cache.Cache[*system.HostInfo]
	readHost func(context.Context) (*system.HostInfo, error)
}

// NewHandlers creates a new handlers instance
func NewHandlers(store *config.Store, mon *monitor.Monitor, auth *AuthService) *Handlers {
	return &Handlers{
		store:    store,
		mon:      mon,
		auth:     auth,
		hosts:    cache.New[*system.HostInfo](cache.HostInfoTTL),
		readHost: system.ReadHostInfo,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"ticks":     h.mon.Status().Ticks,
	})
}

// IssueToken handles POST /api/token. Only API key holders get tokens.
func (h *Handlers) IssueToken(c *gin.Context) {
	if authMethod(c) != MethodAPIKey {
		c.JSON(http.StatusForbidden, gin.H{"error": "token issuance requires the API key"})
		return
	}

	token, expires, err := h.auth.IssueToken(h.store.Get().TokenLifetime())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires,
	})
}

// GetInfo handles GET /api/info
func (h *Handlers) GetInfo(c *gin.Context) {
	info, err := h.hosts.GetOrLoad(c.Request.Context(), cache.KeyHostInfo, h.readHost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetSnapshot handles GET /api/snapshot
func (h *Handlers) GetSnapshot(c *gin.Context) {
	snap := h.mon.Latest()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": monitor.ErrNoSnapshot.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ListSeries handles GET /api/series
func (h *Handlers) ListSeries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"series": h.mon.Series()})
}

// GetHistory handles GET /api/history/:series?n=
func (h *Handlers) GetHistory(c *gin.Context) {
	series := c.Param("series")

	n := h.store.Get().HistorySize
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
			return
		}
		n = v
	}

	points, err := h.mon.Recent(series, n)
	if errors.Is(err, monitor.ErrUnknownSeries) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "series": series})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": series, "points": points})
}

// ListAlerts handles GET /api/alerts
func (h *Handlers) ListAlerts(c *gin.Context) {
	list := h.mon.Alerts()
	c.JSON(http.StatusOK, gin.H{"alerts": list, "total": len(list)})
}

// ResetCooldown handles POST /api/alerts/reset?metric=
func (h *Handlers) ResetCooldown(c *gin.Context) {
	metric := alerts.Metric(c.Query("metric"))
	if metric != "" {
		known := false
		for _, m := range alerts.Metrics {
			known = known || m == metric
		}
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric", "metric": metric})
			return
		}
	}

	h.mon.ResetCooldown(metric)
	c.JSON(http.StatusOK, gin.H{"success": true, "metric": metric})
}

// GetStatus handles GET /api/status
func (h *Handlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.mon.Status())
}

// Export handles POST /api/export?kind=snapshot|history
func (h *Handlers) Export(c *gin.Context) {
	var (
		path string
		err  error
	)
	switch kind := c.DefaultQuery("kind", "snapshot"); kind {
	case "snapshot":
		path, err = h.mon.ExportSnapshot()
	case "history":
		path, err = h.mon.ExportHistory()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be snapshot or history"})
		return
	}

	var ioErr *export.IOError
	switch {
	case errors.Is(err, monitor.ErrNoSnapshot):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &ioErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "path": ioErr.Path})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "path": path})
	}
}

type loggingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetLogging handles POST /api/logging
func (h *Handlers) SetLogging(c *gin.Context) {
	var req loggingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.mon.SetLogging(*req.Enabled); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": verr.Fields})
			return
		}
		// applied in memory, not persisted
		c.JSON(http.StatusOK, gin.H{"success": true, "logging": h.mon.Logging(), "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "logging": h.mon.Logging()})
}

// GetConfig handles GET /api/config
func (h *Handlers) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, redact(h.store.Get()))
}

// UpdateConfig handles PUT /api/config with a partial JSON document.
func (h *Handlers) UpdateConfig(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if touchesSecrets(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server.api_key and server.jwt_secret cannot be changed over the API"})
		return
	}

	next, err := h.store.Patch(body)
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": verr.Fields})
	case err != nil && next != nil:
		c.JSON(http.StatusOK, gin.H{"config": redact(next), "warning": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"config": redact(next)})
	}
}

// touchesSecrets reports whether a config patch names a credential. Bodies
// that fail to parse are left for Patch to reject.
func touchesSecrets(body []byte) bool {
	var peek struct {
		Server *struct {
			APIKey    *string `json:"api_key"`
			JWTSecret *string `json:"jwt_secret"`
		} `json:"server"`
	}
	if err := json.Unmarshal(body, &peek); err != nil || peek.Server == nil {
		return false
	}
	return peek.Server.APIKey != nil || peek.Server.JWTSecret != nil
}

func redact(cfg *config.Config) *config.Config {
	if cfg.Server.APIKey != "" {
		cfg.Server.APIKey = redacted
	}
	if cfg.Server.JWTSecret != "" {
		cfg.Server.JWTSecret = redacted
	}
	return cfg
}

// StreamEvents handles GET /api/events (SSE snapshots)
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	updates, cancel := h.mon.Subscribe(4)
	defer cancel()

	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			data, err := json.Marshal(snap)
			if err != nil {
				c.SSEvent("error", gin.H{"error": err.Error()})
				return true
			}
			c.SSEvent("snapshot", string(data))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
