package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

func (h *handlers) listNetworkPools(c *gin.Context) {
	pools, err := h.svc.NetworkPools.List(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, pools)
}

func (h *handlers) createNetworkPool(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	pool, err := h.svc.NetworkPools.Create(c.Request.Context(), body)
	if err != nil {
		renderError(c, err)
		return
	}
	created(c, pool)
}

func (h *handlers) getNetworkPool(c *gin.Context) {
	pool, err := h.svc.NetworkPools.Get(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, pool)
}

func (h *handlers) updateNetworkPool(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	pool, err := h.svc.NetworkPools.Update(c.Request.Context(), c.Param("uuid"), body)
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, pool)
}

func (h *handlers) deleteNetworkPool(c *gin.Context) {
	if err := h.svc.NetworkPools.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
