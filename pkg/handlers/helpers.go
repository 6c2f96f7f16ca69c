package handlers

import (
	"context"
	"errors"
	"net/http"

	"retail-forecast-api/pkg/models"
	"retail-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// respondError はエラー種別に応じて400または500を返す
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		c.JSON(svcErr.HTTPStatus(), models.ErrorResponse{
			Error:  string(svcErr.Kind),
			Detail: svcErr.Error(),
		})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "Unavailable", Detail: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "InternalError", Detail: err.Error()})
}
