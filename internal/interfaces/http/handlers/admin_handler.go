package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/apishield/internal/application/dto"
	appService "github.com/turtacn/apishield/internal/application/service"
	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

// AdminHandler exposes operator endpoints for bans, sweeps and route resolution.
type AdminHandler struct {
	app appService.ShieldAppService
	log logger.Logger
}

func NewAdminHandler(app appService.ShieldAppService, log logger.Logger) *AdminHandler {
	return &AdminHandler{app: app, log: log.WithComponent("admin_handler")}
}

// Sweep runs both cleanup passes once.
// POST /admin/sweep
func (h *AdminHandler) Sweep(c *gin.Context) {
	resp, err := h.app.Sweep(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(resp, traceIDFrom(c)))
}

// GetBan reports the ban of an identity.
// GET /admin/bans/:identity
func (h *AdminHandler) GetBan(c *gin.Context) {
	resp, err := h.app.BanStatus(c.Request.Context(), c.Param("identity"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(resp, traceIDFrom(c)))
}

// PutBan bans an identity for the requested number of seconds.
// PUT /admin/bans/:identity
func (h *AdminHandler) PutBan(c *gin.Context) {
	var req dto.BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	resp, err := h.app.Ban(c.Request.Context(), c.Param("identity"), models.SecondsToDuration(req.DurationSeconds))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(resp, traceIDFrom(c)))
}

// DeleteBan lifts the ban of an identity.
// DELETE /admin/bans/:identity
func (h *AdminHandler) DeleteBan(c *gin.Context) {
	if err := h.app.LiftBan(c.Request.Context(), c.Param("identity")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resolve explains which limit applies to a path.
// GET /admin/resolve?path=
func (h *AdminHandler) Resolve(c *gin.Context) {
	path := c.Query("path")
	if !strings.HasPrefix(path, "/") {
		h.fail(c, errors.ErrInvalidRequest("path query parameter must start with '/'"))
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(h.app.Resolve(path), traceIDFrom(c)))
}

func (h *AdminHandler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(c.Request.Context(), "Admin request failed", err, logger.String("path", c.Request.URL.Path))
	}
	c.AbortWithStatusJSON(status, dto.ErrorResponse(err, traceIDFrom(c)))
}

// AdminAuth requires "Authorization: Bearer <token>".
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse(errors.ErrUnauthorized("invalid admin token"), traceIDFrom(c)))
			return
		}
		c.Next()
	}
}
