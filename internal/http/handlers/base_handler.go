// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

type errorResponse struct {
	Error          string `json:"error"`
	Field          string `json:"field,omitempty"`
	ActionRequired string `json:"action_required,omitempty"`
	Current        string `json:"current_status,omitempty"`
	Requested      string `json:"requested_status,omitempty"`
}

// isValidID accepts the IDs this service and its identity providers issue:
// up to 128 characters of letters, digits, '-' and '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps module errors to HTTP statuses. Anything unknown is
// logged and reported as 500 without details.
func writeServiceError(c *gin.Context, err error) {
	var fe *types.FieldError
	var se *order.StateError
	switch {
	case errors.As(err, &fe):
		resp := errorResponse{Error: fe.Error(), Field: fe.Field}
		if errors.Is(err, courier.ErrPositionNotSet) {
			resp.ActionRequired = "update_position"
		}
		writeJSON(c, http.StatusBadRequest, resp)
	case errors.As(err, &se):
		writeJSON(c, http.StatusConflict, errorResponse{
			Error:     se.Error(),
			Current:   string(se.Current),
			Requested: string(se.Requested),
		})
	case errors.Is(err, order.ErrNotFound), errors.Is(err, courier.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrForbidden), errors.Is(err, courier.ErrInactive), errors.Is(err, courier.ErrNotApproved):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrOTPLocked):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrNoLongerAvailable),
		errors.Is(err, order.ErrCourierUnavailable),
		errors.Is(err, order.ErrInvalidOTP),
		errors.Is(err, order.ErrNotDelivered),
		errors.Is(err, order.ErrAlreadyRated),
		errors.Is(err, courier.ErrBusy):
		writeError(c, http.StatusConflict, err.Error())
	default:
		zap.L().Error("unhandled service error", zap.String("path", c.FullPath()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID reads and validates a path parameter, writing 400 on failure.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(id), true
}

// callerActor builds the order actor for the authenticated caller. Merchant
// staff act for the merchant named in their merchant_id claim.
func callerActor(c *gin.Context) order.Actor {
	role := order.Role(middleware.CallerRole(c))
	id := types.ID(middleware.CallerUID(c))
	if role == order.RoleRestaurant || role == order.RoleSupermarket {
		if m := middleware.CallerClaim(c, "merchant_id"); m != "" {
			id = types.ID(m)
		}
	}
	return order.Actor{ID: id, Role: role}
}

// queryFloat parses an optional float query parameter.
func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, types.NewFieldError(key, "must be a number")
	}
	return f, nil
}
