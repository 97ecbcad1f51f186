package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ngenohkevin/fwcheck-agent/config"
	"github.com/ngenohkevin/fwcheck-agent/internal/cache"
	"github.com/ngenohkevin/fwcheck-agent/internal/firewall"
	"github.com/ngenohkevin/fwcheck-agent/internal/process"
	"github.com/ngenohkevin/fwcheck-agent/internal/system"
	"github.com/ngenohkevin/fwcheck-agent/internal/tracker"
)

// Version is reported by /health and /api/info
const Version = "1.0.0"

const (
	hostInfoTTL     = 30 * time.Second
	eventBuffer     = 64
	keepAlivePeriod = 15 * time.Second

	defaultTokenTTL = time.Hour
	maxTokenTTL     = 24 * time.Hour
)

// Tracker is the process reconciliation loop the API drives
type Tracker interface {
	Refresh(ctx context.Context) (*tracker.RefreshResult, error)
	Status() tracker.Status
	SetAutoRefresh(enabled bool)
	Collection() *tracker.Collection
	Shutdown()
	Done() <-chan struct{}
}

// RuleMatcher answers firewall rule queries
type RuleMatcher interface {
	All(ctx context.Context) ([]firewall.Rule, error)
	Match(ctx context.Context, path string) ([]firewall.Rule, error)
}

// ProcessReader looks up live processes by PID
type ProcessReader interface {
	Get(ctx context.Context, pid int32) (*process.ProcessInfo, error)
}

// HostInfoFunc reads host identification
type HostInfoFunc func(ctx context.Context) (*system.HostInfo, error)

// Handlers holds all HTTP handlers
type Handlers struct {
	cfg       *config.Config
	auth      *AuthService
	tracker   Tracker
	rules     RuleMatcher
	processes ProcessReader
	hostInfo  HostInfoFunc
	hostCache *cache.Cache[*system.HostInfo]
	started   time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, auth *AuthService, deps Dependencies) *Handlers {
	hostInfo := deps.HostInfo
	if hostInfo == nil {
		hostInfo = system.GetHostInfo
	}

	return &Handlers{
		cfg:       cfg,
		auth:      auth,
		tracker:   deps.Tracker,
		rules:     deps.Rules,
		processes: deps.Processes,
		hostInfo:  hostInfo,
		hostCache: cache.New[*system.HostInfo](hostInfoTTL, time.Minute),
		started:   time.Now(),
	}
}

// errorStatus maps domain errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, tracker.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, firewall.ErrQueryFailed):
		return http.StatusBadGateway
	case errors.Is(err, process.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := "ok"
	select {
	case <-h.tracker.Done():
		status = "stopping"
	default:
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    Version,
		"setup_mode": h.cfg.SetupMode,
	})
}

// GetInfo handles GET /api/info
func (h *Handlers) GetInfo(c *gin.Context) {
	ctx := c.Request.Context()
	hostInfo, err := h.hostCache.GetOrSet(cache.KeyHostInfo, func() (*system.HostInfo, error) {
		return h.hostInfo(ctx)
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hostname":         hostInfo.Hostname,
		"os":               hostInfo.OS,
		"platform":         hostInfo.Platform,
		"kernel":           hostInfo.KernelVersion,
		"arch":             hostInfo.KernelArch,
		"uptime":           hostInfo.UptimeHuman,
		"agent":            tokenIssuer,
		"version":          Version,
		"agent_uptime":     time.Since(h.started).Round(time.Second).String(),
		"firewall_command": h.cfg.FirewallCommand,
		"firewall_args":    h.cfg.FirewallArgs,
	})
}

// ListProcesses handles GET /api/processes
func (h *Handlers) ListProcesses(c *gin.Context) {
	var filter tracker.Filter

	if raw := c.Query("terminated"); raw != "" {
		terminated, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "terminated must be true or false"})
			return
		}
		filter.Terminated = &terminated
	}
	filter.Query = c.Query("q")

	snaps := h.tracker.Collection().Snapshots(filter)
	c.JSON(http.StatusOK, tracker.ProcessList{Processes: snaps, Total: len(snaps)})
}

// GetProcess handles GET /api/processes/:name
func (h *Handlers) GetProcess(c *gin.Context) {
	rec, ok := h.tracker.Collection().Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not tracked"})
		return
	}

	c.JSON(http.StatusOK, rec.Snapshot())
}

// GetProcessRules handles GET /api/processes/:name/rules
func (h *Handlers) GetProcessRules(c *gin.Context) {
	rec, ok := h.tracker.Collection().Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "process not tracked"})
		return
	}

	snap := rec.Snapshot()
	rules, err := h.rules.Match(c.Request.Context(), snap.FilePath)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"process": snap,
		"rules":   firewall.NewRuleList(rules),
	})
}

// GetPID handles GET /api/pids/:pid
func (h *Handlers) GetPID(c *gin.Context) {
	pid, err := strconv.ParseInt(c.Param("pid"), 10, 32)
	if err != nil || pid <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid PID"})
		return
	}

	info, err := h.processes.Get(c.Request.Context(), int32(pid))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// Refresh handles POST /api/refresh
func (h *Handlers) Refresh(c *gin.Context) {
	result, err := h.tracker.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefreshStatus handles GET /api/refresh/status
func (h *Handlers) RefreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Status())
}

// SetAutoRefresh handles PUT /api/refresh/auto
func (h *Handlers) SetAutoRefresh(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: enabled is required"})
		return
	}

	h.tracker.SetAutoRefresh(*req.Enabled)
	c.JSON(http.StatusOK, h.tracker.Status())
}

// ListRules handles GET /api/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.rules.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, firewall.NewRuleList(rules))
}

// MatchRules handles GET /api/rules/match?path=
func (h *Handlers) MatchRules(c *gin.Context) {
	path := c.Query("path")

	rules, err := h.rules.Match(c.Request.Context(), path)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"rules": firewall.NewRuleList(rules),
	})
}

// StreamEvents handles GET /api/events (SSE collection changes)
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, unsubscribe := h.tracker.Collection().Subscribe(eventBuffer)
	defer unsubscribe()

	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()

	ctx := c.Request.Context()
	log.WithField("client", c.ClientIP()).Debug("Event stream opened")

	c.SSEvent("status", h.tracker.Status())
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		case <-h.tracker.Done():
			return false
		case <-ctx.Done():
			return false
		}
	})

	log.WithField("client", c.ClientIP()).Debug("Event stream closed")
}

// IssueToken handles POST /api/token. Only API key holders may mint tokens.
func (h *Handlers) IssueToken(c *gin.Context) {
	if method, _ := c.Get(authMethodKey); method != authAPIKey {
		c.JSON(http.StatusForbidden, gin.H{"error": "tokens can only be issued with the API key"})
		return
	}

	var req struct {
		Role       string `json:"role"`
		TTLSeconds int    `json:"ttl_seconds"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	ttl := defaultTokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	if ttl > maxTokenTTL {
		ttl = maxTokenTTL
	}
	if req.Role == "" {
		req.Role = "viewer"
	}

	token, expires, err := h.auth.GenerateToken(req.Role, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"role":       req.Role,
		"expires_at": expires.UTC(),
	})
}

// Close releases handler resources
func (h *Handlers) Close() {
	h.hostCache.Close()
}
