package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/TritonDataCenter/napi-go/internal/domain/aggregation"
	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/network"
	"github.com/TritonDataCenter/napi-go/internal/domain/networkpool"
	"github.com/TritonDataCenter/napi-go/internal/domain/nic"
	"github.com/TritonDataCenter/napi-go/internal/domain/nictag"
	"github.com/TritonDataCenter/napi-go/internal/domain/overlay"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/store/memstore"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	st := memstore.New()

	tags := nictag.New(st, changefeed.NopPublisher{})
	if err := tags.Init(ctx); err != nil {
		t.Fatalf("nictag Init: %v", err)
	}
	ipAlloc := ipalloc.New(st, 5)
	nets := network.New(st, ipAlloc, tags, changefeed.NopPublisher{}, true)
	if err := nets.Init(ctx); err != nil {
		t.Fatalf("network Init: %v", err)
	}
	pools := networkpool.New(st, network.PoolLookupAdapter{Service: nets}, changefeed.NopPublisher{})
	if err := pools.Init(ctx); err != nil {
		t.Fatalf("networkpool Init: %v", err)
	}
	lookup := nic.NetworkLookupFunc(func(ctx context.Context, uuid string) (nic.NetworkInfo, *nerrors.Error) {
		n, err := nets.GetUnfiltered(ctx, uuid)
		if err != nil {
			return nic.NetworkInfo{}, err
		}
		return nic.NetworkInfo{
			UUID: n.UUID, Family: n.Family, NICTag: n.NICTag, Fabric: n.Fabric, VNetID: n.VNetID,
			Subnet: n.Subnet, ProvisionStartIP: n.ProvisionStartIP, ProvisionEndIP: n.ProvisionEndIP,
			OwnerUUIDs: n.OwnerUUIDs,
		}, nil
	})
	nics := nic.New(st, ipAlloc, lookup, overlay.NopPublisher{}, changefeed.NopPublisher{}, "underlay", [3]byte{0x90, 0xb8, 0xd0})
	if err := nics.Init(ctx); err != nil {
		t.Fatalf("nic Init: %v", err)
	}
	aggs := aggregation.New(st, nics, changefeed.NopPublisher{})
	if err := aggs.Init(ctx); err != nil {
		t.Fatalf("aggregation Init: %v", err)
	}

	return NewRouter(Services{
		NICTags: tags, Networks: nets, NetworkPools: pools, NICs: nics,
		IPAlloc: ipAlloc, Aggregations: aggs,
		AdminUUID: "22222222-2222-2222-2222-222222222222",
		Config:    Config{FabricsEnabled: true},
	})
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/ping", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNICTagLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/nic_tags", map[string]any{"name": "external2", "mtu": 1500})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/nic_tags/external2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doRequest(r, http.MethodDelete, "/nic_tags/external2", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNetworkCreateReservesGateway(t *testing.T) {
	r := newTestRouter(t)
	doRequest(r, http.MethodPost, "/nic_tags", map[string]any{"name": "external", "mtu": 1500})

	w := doRequest(r, http.MethodPost, "/networks", map[string]any{
		"name": "net1", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
		"subnet": "192.0.2.0/24", "provision_start_ip": "192.0.2.5", "provision_end_ip": "192.0.2.250",
		"gateway": "192.0.2.1", "resolvers": []string{"1.2.3.4", "192.0.2.2"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		UUID string `json:"UUID"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.UUID == "" {
		t.Fatalf("expected a uuid in response: %s", w.Body.String())
	}

	w = doRequest(r, http.MethodGet, "/networks/"+created.UUID+"/ips/192.0.2.1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get gateway ip status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNICCreateOnNetworkAllocatesNextFree(t *testing.T) {
	r := newTestRouter(t)
	doRequest(r, http.MethodPost, "/nic_tags", map[string]any{"name": "external", "mtu": 1500})

	w := doRequest(r, http.MethodPost, "/networks", map[string]any{
		"name": "net2", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
		"subnet": "198.51.100.0/24", "provision_start_ip": "198.51.100.5", "provision_end_ip": "198.51.100.250",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create network status = %d, body = %s", w.Code, w.Body.String())
	}
	var netResp struct {
		UUID string `json:"UUID"`
	}
	json.Unmarshal(w.Body.Bytes(), &netResp)

	w = doRequest(r, http.MethodPost, "/networks/"+netResp.UUID+"/nics", map[string]any{
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create nic status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNICTagDeleteBlockedByReferencingNetworkReturnsConflict(t *testing.T) {
	r := newTestRouter(t)
	doRequest(r, http.MethodPost, "/nic_tags", map[string]any{"name": "dc1", "mtu": 1500})
	doRequest(r, http.MethodPost, "/networks", map[string]any{
		"name": "net3", "nic_tag": "dc1", "vlan_id": 0, "family": "ipv4",
		"subnet": "203.0.113.0/24", "provision_start_ip": "203.0.113.5", "provision_end_ip": "203.0.113.250",
	})
	w := doRequest(r, http.MethodDelete, "/nic_tags/dc1", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
}
