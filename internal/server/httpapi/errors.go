package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkbridge/server/internal/common"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// ToAPIError maps an auth error kind to its fixed status and body. The
// message never says more than the kind does.
func ToAPIError(err error) (int, APIError) {
	kind := common.KindOf(err)
	msg := kind.String()

	switch kind {
	case common.KindDuplicateIdentity:
		return http.StatusConflict, APIError{Code: "USER_EXISTS", Message: msg}
	case common.KindInvalidCredentials:
		return http.StatusUnauthorized, APIError{Code: "INVALID_CREDENTIALS", Message: msg}
	case common.KindInvalidOrExpiredToken:
		return http.StatusUnauthorized, APIError{Code: "INVALID_TOKEN", Message: msg}
	case common.KindInvalidOrExpiredRefreshToken:
		return http.StatusUnauthorized, APIError{Code: "INVALID_REFRESH_TOKEN", Message: msg}
	case common.KindNotFound:
		return http.StatusNotFound, APIError{Code: "USER_NOT_FOUND", Message: msg}
	default:
		return http.StatusInternalServerError, APIError{Code: "INTERNAL_ERROR", Message: common.KindInternal.String()}
	}
}

func abortWithError(c *gin.Context, err error) {
	status, body := ToAPIError(err)
	c.AbortWithStatusJSON(status, body)
}

func abortWith(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: msg})
}
