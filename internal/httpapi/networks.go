package httpapi

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TritonDataCenter/napi-go/internal/domain/network"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
)

func (h *handlers) listNetworks(c *gin.Context) {
	vlanID, ok1 := queryInt(c, "vlan_id")
	fabric, ok2 := queryBool(c, "fabric")
	limit, ok3 := queryInt(c, "limit")
	offset, ok4 := queryInt(c, "offset")
	if !ok1 {
		badQueryParam(c, "vlan_id")
		return
	}
	if !ok2 {
		badQueryParam(c, "fabric")
		return
	}
	if !ok3 {
		badQueryParam(c, "limit")
		return
	}
	if !ok4 {
		badQueryParam(c, "offset")
		return
	}

	networks, err := h.svc.Networks.List(c.Request.Context(), network.ListFilters{
		Name:            c.Query("name"),
		NICTag:          c.Query("nic_tag"),
		VLANID:          vlanID,
		Family:          c.Query("family"),
		OwnerUUID:       c.Query("owner_uuid"),
		ProvisionableBy: c.Query("provisionable_by"),
		Fabric:          fabric,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, paginate(networks, offset, limit))
}

func paginate[T any](items []T, offset, limit *int) []T {
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if limit != nil && *limit >= 0 && start+*limit < end {
		end = start + *limit
	}
	return items[start:end]
}

func (h *handlers) createNetwork(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	n, err := h.svc.Networks.Create(c.Request.Context(), body)
	if err != nil {
		renderError(c, err)
		return
	}
	created(c, n)
}

func (h *handlers) getNetwork(c *gin.Context) {
	n, err := h.svc.Networks.Get(c.Request.Context(), c.Param("uuid"), c.Query("owner_uuid"), c.Query("provisionable_by"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, n)
}

func (h *handlers) updateNetwork(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	n, err := h.svc.Networks.Update(c.Request.Context(), c.Param("uuid"), body)
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, n)
}

func (h *handlers) deleteNetwork(c *gin.Context) {
	if err := h.svc.Networks.Delete(c.Request.Context(), c.Param("uuid")); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listNetworkIPs(c *gin.Context) {
	records, err := h.svc.IPAlloc.List(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, records)
}

func (h *handlers) getNetworkIP(c *gin.Context) {
	addr := net.ParseIP(c.Param("ip"))
	if addr == nil {
		badQueryParam(c, "ip")
		return
	}
	rec, err := h.svc.IPAlloc.Get(c.Request.Context(), c.Param("uuid"), addr)
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, rec)
}

func (h *handlers) putNetworkIP(c *gin.Context) {
	addr := net.ParseIP(c.Param("ip"))
	if addr == nil {
		badQueryParam(c, "ip")
		return
	}
	var body struct {
		BelongsToUUID string `json:"belongs_to_uuid"`
		BelongsToType string `json:"belongs_to_type"`
		OwnerUUID     string `json:"owner_uuid"`
		Reserved      *bool  `json:"reserved"`
	}
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil && bindErr != http.ErrBodyNotAllowed {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}

	networkUUID := c.Param("uuid")
	if body.Reserved != nil && !*body.Reserved {
		if err := h.svc.IPAlloc.Release(c.Request.Context(), networkUUID, addr); err != nil {
			renderError(c, err)
			return
		}
		ok(c, gin.H{"ip": addr.String(), "free": true, "reserved": false})
		return
	}
	rec, err := h.svc.IPAlloc.ClaimSpecific(c.Request.Context(), networkUUID, addr,
		body.BelongsToUUID, body.BelongsToType, body.OwnerUUID, isAdminRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}
	ok(c, rec)
}

func (h *handlers) createNICOnNetwork(c *gin.Context) {
	var body map[string]any
	if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
		renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "request", Code: nerrors.CodeInvalidParameter, Message: "malformed request body",
		}}))
		return
	}
	body["network_uuid"] = c.Param("uuid")
	n, err := h.svc.NICs.Create(c.Request.Context(), body, isAdminRequest(c))
	if err != nil {
		renderError(c, err)
		return
	}
	created(c, n)
}
