package api

import (
	"errors"
	"net/http"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/annel0/shard-realms/internal/auth"
	"github.com/gin-gonic/gin"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindWorldNotFound:     http.StatusNotFound,
	apperr.KindAccessDenied:      http.StatusForbidden,
	apperr.KindPlayerNotOnGrid:   http.StatusConflict,
	apperr.KindInvalidMove:       http.StatusUnprocessableEntity,
	apperr.KindSquareOccupied:    http.StatusConflict,
	apperr.KindInsufficientFunds: http.StatusPaymentRequired,
	apperr.KindAlreadyThere:      http.StatusConflict,
	apperr.KindPendingEncounter:  http.StatusConflict,
	apperr.KindInBattle:          http.StatusConflict,
	apperr.KindNoActiveBattle:    http.StatusConflict,
	apperr.KindNotYourTurn:       http.StatusConflict,
	apperr.KindInvalidItem:       http.StatusUnprocessableEntity,
	apperr.KindWorldFull:         http.StatusConflict,
	apperr.KindNotClaimable:      http.StatusConflict,
	apperr.KindInvalidArgument:   http.StatusBadRequest,
	apperr.KindAlreadyOwned:      http.StatusConflict,
	apperr.KindNotOwned:          http.StatusConflict,
}

// statusFor HTTP статус и код ошибки для ответа
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusBadRequest, "invalid_argument"
	}

	kind := apperr.KindOf(err)
	if status, ok := kindStatus[kind]; ok {
		return status, kind.String()
	}
	return http.StatusInternalServerError, "internal"
}

// respondError пишет ошибку операции. Внутренние ошибки не раскрываются клиенту.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "Внутренняя ошибка сервера"
	}
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: message, Code: code})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, GenericResponse{Success: false, Message: message, Code: "invalid_argument"})
}
