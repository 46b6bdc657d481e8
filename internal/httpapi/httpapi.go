// Package httpapi wires the domain services of internal/domain/* to the
// HTTP surface of spec.md §6 using gin. Handlers stay thin: they bind
// path/query parameters, call into a domain Service, and render either
// the resulting value or an internal/errors.Error as JSON. No domain
// logic lives here.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TritonDataCenter/napi-go/internal/domain/aggregation"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/network"
	"github.com/TritonDataCenter/napi-go/internal/domain/networkpool"
	"github.com/TritonDataCenter/napi-go/internal/domain/nic"
	"github.com/TritonDataCenter/napi-go/internal/domain/nictag"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/ownerctx"
)

// Config is the runtime configuration surfaced through GET /ping.
type Config struct {
	FabricsEnabled bool
}

// Services bundles every domain service a handler may need.
type Services struct {
	NICTags      *nictag.Service
	Networks     *network.Service
	NetworkPools *networkpool.Service
	NICs         *nic.Service
	IPAlloc      *ipalloc.Service
	Aggregations *aggregation.Service
	AdminUUID    string
	Config       Config
}

// NewRouter builds the gin engine for the full HTTP surface, including
// the admin-owner context middleware (spec.md §9).
func NewRouter(svc Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(adminOwnerMiddleware(svc.AdminUUID))

	h := &handlers{svc: svc}

	r.GET("/ping", h.ping)
	r.HEAD("/ping", h.ping)

	r.GET("/nic_tags", h.listNICTags)
	r.HEAD("/nic_tags", h.listNICTags)
	r.POST("/nic_tags", h.createNICTag)
	r.GET("/nic_tags/:name", h.getNICTag)
	r.HEAD("/nic_tags/:name", h.getNICTag)
	r.PUT("/nic_tags/:name", h.updateNICTag)
	r.DELETE("/nic_tags/:name", h.deleteNICTag)

	r.GET("/networks", h.listNetworks)
	r.HEAD("/networks", h.listNetworks)
	r.POST("/networks", h.createNetwork)
	r.GET("/networks/:uuid", h.getNetwork)
	r.HEAD("/networks/:uuid", h.getNetwork)
	r.PUT("/networks/:uuid", h.updateNetwork)
	r.DELETE("/networks/:uuid", h.deleteNetwork)
	r.GET("/networks/:uuid/ips", h.listNetworkIPs)
	r.GET("/networks/:uuid/ips/:ip", h.getNetworkIP)
	r.PUT("/networks/:uuid/ips/:ip", h.putNetworkIP)
	r.POST("/networks/:uuid/nics", h.createNICOnNetwork)

	r.GET("/network_pools", h.listNetworkPools)
	r.HEAD("/network_pools", h.listNetworkPools)
	r.POST("/network_pools", h.createNetworkPool)
	r.GET("/network_pools/:uuid", h.getNetworkPool)
	r.HEAD("/network_pools/:uuid", h.getNetworkPool)
	r.PUT("/network_pools/:uuid", h.updateNetworkPool)
	r.DELETE("/network_pools/:uuid", h.deleteNetworkPool)

	r.GET("/nics", h.listNICs)
	r.HEAD("/nics", h.listNICs)
	r.POST("/nics", h.createNIC)
	r.GET("/nics/:mac", h.getNIC)
	r.HEAD("/nics/:mac", h.getNIC)
	r.PUT("/nics/:mac", h.updateNIC)
	r.DELETE("/nics/:mac", h.deleteNIC)

	r.GET("/aggregations", h.listAggregations)
	r.GET("/aggregations/:id", h.getAggregation)
	r.POST("/aggregations", h.createAggregation)
	r.PUT("/aggregations/:id", h.updateAggregation)
	r.DELETE("/aggregations/:id", h.deleteAggregation)

	r.GET("/fabrics/:owner/vlans", h.listFabricVLANs)
	r.POST("/fabrics/:owner/vlans", h.createFabricVLAN)
	r.GET("/fabrics/:owner/vlans/:vlan_id", h.getFabricVLAN)
	r.PUT("/fabrics/:owner/vlans/:vlan_id", h.updateFabricVLAN)
	r.DELETE("/fabrics/:owner/vlans/:vlan_id", h.deleteFabricVLAN)
	r.GET("/fabrics/:owner/vlans/:vlan_id/networks", h.listFabricNetworks)
	r.POST("/fabrics/:owner/vlans/:vlan_id/networks", h.createFabricNetwork)
	r.GET("/fabrics/:owner/vlans/:vlan_id/networks/:uuid", h.getFabricNetwork)
	r.PUT("/fabrics/:owner/vlans/:vlan_id/networks/:uuid", h.updateFabricNetwork)
	r.DELETE("/fabrics/:owner/vlans/:vlan_id/networks/:uuid", h.deleteFabricNetwork)

	r.GET("/manage/gc", h.gc)

	return r
}

type handlers struct {
	svc Services
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logging.Debug("request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

// adminOwnerMiddleware injects the configured admin owner into every
// request's context, per spec.md §9: a process-wide value, carried
// explicitly rather than read from a global.
func adminOwnerMiddleware(adminUUID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminUUID != "" {
			ctx := ownerctx.WithAdminOwner(c.Request.Context(), adminUUID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func isAdminRequest(c *gin.Context) bool {
	caller := c.Query("owner_uuid")
	if caller == "" {
		return false
	}
	return ownerctx.IsAdmin(c.Request.Context(), caller)
}

// renderError maps a domain error onto the JSON payload and status code
// of spec.md §7.
func renderError(c *gin.Context, err *nerrors.Error) {
	c.JSON(err.Status(), err.ToPayload())
}

func notFoundJSON(c *gin.Context, resource, id string) {
	renderError(c, nerrors.NotFound(resource, id))
}

func queryInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func badQueryParam(c *gin.Context, name string) {
	renderError(c, nerrors.InvalidParameters([]nerrors.FieldError{{
		Field: name, Code: nerrors.CodeInvalidParameter, Message: "invalid " + name,
	}}))
}

func ok(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

func created(c *gin.Context, v any) {
	c.JSON(http.StatusCreated, v)
}
