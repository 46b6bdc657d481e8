package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/TritonDataCenter/napi-go/internal/domain/network"
)

// gc is a read-only diagnostic reporting counts of placeholder IP
// records across every network's IP sub-bucket. It performs no
// mutation, per spec.md's "out of scope: ... UI" boundary — this is an
// operator endpoint, not a management UI.
func (h *handlers) gc(c *gin.Context) {
	networks, err := h.svc.Networks.List(c.Request.Context(), network.ListFilters{})
	if err != nil {
		renderError(c, err)
		return
	}

	type networkStat struct {
		UUID         string `json:"uuid"`
		Placeholders int    `json:"placeholders"`
	}
	stats := make([]networkStat, 0, len(networks))
	total := 0
	for _, n := range networks {
		count, perr := h.svc.IPAlloc.CountPlaceholders(c.Request.Context(), n.UUID)
		if perr != nil {
			renderError(c, perr)
			return
		}
		stats = append(stats, networkStat{UUID: n.UUID, Placeholders: count})
		total += count
	}
	ok(c, gin.H{"networks_scanned": len(networks), "placeholder_total": total, "networks": stats})
}
