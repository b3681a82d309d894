package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/service"
	"autovpn-backend/internal/store"
	"autovpn-backend/pkg/utils"
)

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := model.ErrorResponse{OK: false, Detail: err.Error()}

	var apiErr *utils.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus()
		resp.Code = apiErr.Code
	case errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrLogNotFound),
		errors.Is(err, service.ErrPeerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInventoryMissing):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrPoolExhausted):
		status = http.StatusConflict
	}
	c.AbortWithStatusJSON(status, resp)
}

func bindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{
		OK:     false,
		Code:   3001,
		Detail: "invalid request payload: " + err.Error(),
	})
}
