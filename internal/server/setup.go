package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ngenohkevin/fwcheck-agent/config"
)

const minAPIKeyLength = 32

// SetupHandlers handles the setup and settings endpoints
type SetupHandlers struct {
	cfg *config.Config
}

// NewSetupHandlers creates setup handlers
func NewSetupHandlers(cfg *config.Config) *SetupHandlers {
	return &SetupHandlers{cfg: cfg}
}

// GetSettings returns current settings without secrets
func (h *SetupHandlers) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"port":                     h.cfg.Port,
		"host":                     h.cfg.Host,
		"allowed_origins":          h.cfg.AllowedOrigins,
		"log_level":                h.cfg.LogLevel,
		"rate_limit_rps":           h.cfg.RateLimitRPS,
		"refresh_interval_seconds": int(h.cfg.RefreshInterval.Seconds()),
		"monitor_interval_seconds": int(h.cfg.MonitorInterval.Seconds()),
		"auto_refresh":             h.cfg.AutoRefresh,
		"firewall_command":         h.cfg.FirewallCommand,
		"firewall_args":            h.cfg.FirewallArgs,
		"firewall_timeout_seconds": int(h.cfg.FirewallTimeout.Seconds()),
		"env_file":                 h.cfg.EnvFile,
		"setup_mode":               h.cfg.SetupMode,
		"api_key_configured":       h.cfg.APIKey != "",
	})
}

// GenerateKey generates a new API key without saving it
func (h *SetupHandlers) GenerateKey(c *gin.Context) {
	apiKey, err := config.GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate API key: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key": apiKey,
	})
}

// SaveKey saves the API key to the .env file
func (h *SetupHandlers) SaveKey(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: api_key is required",
		})
		return
	}

	if len(req.APIKey) < minAPIKeyLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "API key must be at least 32 characters",
		})
		return
	}

	if err := h.cfg.SaveAPIKey(req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save API key: " + err.Error(),
		})
		return
	}

	log.WithField("env_file", h.cfg.EnvFile).Info("API key saved")

	c.JSON(http.StatusOK, gin.H{
		"message":  "API key saved successfully",
		"env_file": h.cfg.EnvFile,
		"note":     "Restart the agent to apply the new API key for authentication",
	})
}
