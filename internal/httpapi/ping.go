package httpapi

import "github.com/gin-gonic/gin"

func (h *handlers) ping(c *gin.Context) {
	ok(c, gin.H{
		"ping":   "pong",
		"config": gin.H{"fabrics_enabled": h.svc.Config.FabricsEnabled},
	})
}
