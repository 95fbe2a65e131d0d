package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
	"github.com/voxagent/billing/internal/service"
)

type SettingsHandler struct {
	settingsService service.SettingsService
	providerService service.ProviderService
	log             *logger.Logger
}

func NewSettingsHandler(settingsService service.SettingsService, providerService service.ProviderService, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
		providerService: providerService,
		log:             log,
	}
}

// @Summary Get a global setting
// @Tags Settings
// @Produce json
// @Security BearerAuth
// @Param key path string true "Setting key"
// @Success 200 {object} settings.Setting
// @Router /settings/{key} [get]
func (h *SettingsHandler) GetSetting(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.Error(requiredParam("key"))
		return
	}
	if !callerFrom(c).IsAuthenticated() {
		c.Error(ierr.NewError("caller is not authenticated").
			WithHint("Authentication required").
			Mark(ierr.ErrUnauthenticated))
		return
	}

	setting, err := h.settingsService.GetSetting(c.Request.Context(), key)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, setting)
}

// @Summary Update a global setting
// @Description Rate tables are validated before they are stored
// @Tags Settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "Setting key"
// @Success 200 {object} settings.Setting
// @Router /settings/{key} [put]
func (h *SettingsHandler) UpdateSetting(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.Error(requiredParam("key"))
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		c.Error(invalidRequest(err))
		return
	}

	setting, err := h.settingsService.UpdateSetting(c.Request.Context(), callerFrom(c), key, raw)
	if err != nil {
		c.Error(err)
		return
	}

	h.log.Infow("global setting updated", "key", key, "user_id", callerFrom(c).UserID)
	c.JSON(http.StatusOK, setting)
}

// @Summary List providers
// @Tags Settings
// @Produce json
// @Security BearerAuth
// @Param active_only query bool false "Only active providers"
// @Success 200 {array} provider.Provider
// @Router /providers [get]
func (h *SettingsHandler) ListProviders(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	providers, err := h.providerService.ListProviders(c.Request.Context(), activeOnly)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, providers)
}
