package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

func (h *handlers) listNICTags(c *gin.Context) {
	tags, err := h.svc.NICTags.List(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, tags)
}

func (h *handlers) createNICTag(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
		MTU  int    `json:"mtu"`
	}
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	tag, err := h.svc.NICTags.Create(c.Request.Context(), body.Name, body.MTU)
	if err != nil {
		renderError(c, err)
		return
	}
	created(c, tag)
}

func (h *handlers) getNICTag(c *gin.Context) {
	tag, err := h.svc.NICTags.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, tag)
}

func (h *handlers) updateNICTag(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
		MTU  int    `json:"mtu"`
	}
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil && bindErr != http.ErrBodyNotAllowed {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	tag, err := h.svc.NICTags.Update(c.Request.Context(), c.Param("name"), body.Name, body.MTU)
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, tag)
}

func (h *handlers) deleteNICTag(c *gin.Context) {
	if err := h.svc.NICTags.Delete(c.Request.Context(), c.Param("name")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
