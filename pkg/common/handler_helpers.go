package common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParseIDParam parses a positive integer ID from a URL parameter.
// Returns the ID and true on success, or sends an error response and returns false.
//
// Usage:
//
//	driverID, ok := common.ParseIDParam(c, "id", "driver ID")
//	if !ok {
//	    return
//	}
func ParseIDParam(c *gin.Context, paramName, displayName string) (int64, bool) {
	paramValue := c.Param(paramName)
	if paramValue == "" {
		ErrorResponse(c, http.StatusBadRequest, displayName+" is required")
		return 0, false
	}

	id, err := strconv.ParseInt(paramValue, 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid "+displayName)
		return 0, false
	}
	if id <= 0 {
		ErrorResponse(c, http.StatusUnprocessableEntity, displayName+" must be positive")
		return 0, false
	}

	return id, true
}

// BindJSON binds JSON request body and sends a 422 on validation failure.
// Returns true on success, false on failure (response already sent).
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		ErrorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}
