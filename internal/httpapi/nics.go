package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TritonDataCenter/napi-go/internal/domain/nic"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

func (h *handlers) listNICs(c *gin.Context) {
	nics, err := h.svc.NICs.List(c.Request.Context(), nic.ListFilters{
		OwnerUUID:     c.Query("owner_uuid"),
		BelongsToUUID: c.Query("belongs_to_uuid"),
		NetworkUUID:   c.Query("network_uuid"),
		BelongsToType: c.Query("belongs_to_type"),
	})
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, nics)
}

func (h *handlers) createNIC(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	n, err := h.svc.NICs.Create(c.Request.Context(), body, isAdminRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}
	created(c, n)
}

func (h *handlers) getNIC(c *gin.Context) {
	n, err := h.svc.NICs.Get(c.Request.Context(), c.Param("mac"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, n)
}

func (h *handlers) updateNIC(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	n, err := h.svc.NICs.Update(c.Request.Context(), c.Param("mac"), body, isAdminRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, n)
}

func (h *handlers) deleteNIC(c *gin.Context) {
	if err := h.svc.NICs.Delete(c.Request.Context(), c.Param("mac")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
