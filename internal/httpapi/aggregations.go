package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

func (h *handlers) listAggregations(c *gin.Context) {
	aggs, err := h.svc.Aggregations.List(c.Request.Context(), c.Query("belongs_to_uuid"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, aggs)
}

func (h *handlers) createAggregation(c *gin.Context) {
	var body struct {
		Name       string   `json:"name"`
		ServerUUID string   `json:"belongs_to_uuid"`
		MACs       []string `json:"macs"`
		LACPMode   string   `json:"lacp_mode"`
	}
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	agg, err := h.svc.Aggregations.Create(c.Request.Context(), body.ServerUUID, body.Name, body.MACs, body.LACPMode)
	if err != nil {
		renderError(c, err)
		return
	}
	created(c, agg)
}

func (h *handlers) getAggregation(c *gin.Context) {
	agg, err := h.svc.Aggregations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, agg)
}

func (h *handlers) updateAggregation(c *gin.Context) {
	var body struct {
		MACs     []string `json:"macs"`
		LACPMode string   `json:"lacp_mode"`
	}
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil && bindErr != http.ErrBodyNotAllowed {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	agg, err := h.svc.Aggregations.Update(c.Request.Context(), c.Param("id"), body.MACs, body.LACPMode)
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, agg)
}

func (h *handlers) deleteAggregation(c *gin.Context) {
	if err := h.svc.Aggregations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
