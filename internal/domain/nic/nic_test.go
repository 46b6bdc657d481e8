package nic

import (
	"context"
	"testing"

	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/overlay"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/store/memstore"
)

const testNetwork = "11111111-1111-1111-1111-111111111111"
const fabricNetwork = "22222222-2222-2222-2222-222222222222"

type fakeNetworks struct {
	infos map[string]NetworkInfo
}

func (f fakeNetworks) GetUnfiltered(ctx context.Context, uuid string) (NetworkInfo, *nerrors.Error) {
	info, ok := f.infos[uuid]
	if !ok {
		return NetworkInfo{}, nerrors.NotFound("network", uuid)
	}
	return info, nil
}

func newTestService(t *testing.T) (*Service, *ipalloc.Service) {
	t.Helper()
	st := memstore.New()
	ipSvc := ipalloc.New(st, 10)
	ctx := context.Background()
	if err := ipSvc.InitBucket(ctx, testNetwork); err != nil {
		t.Fatalf("InitBucket testNetwork: %v", err)
	}
	if err := ipSvc.InitBucket(ctx, fabricNetwork); err != nil {
		t.Fatalf("InitBucket fabricNetwork: %v", err)
	}

	lookup := fakeNetworks{infos: map[string]NetworkInfo{
		testNetwork: {
			UUID: testNetwork, Family: "ipv4", NICTag: "external",
			ProvisionStartIP: "192.0.2.10", ProvisionEndIP: "192.0.2.20",
		},
		fabricNetwork: {
			UUID: fabricNetwork, Family: "ipv4", NICTag: "internal", Fabric: true, VNetID: 42,
			ProvisionStartIP: "10.0.0.10", ProvisionEndIP: "10.0.0.20",
		},
	}}

	svc := New(st, ipSvc, lookup, overlay.NopPublisher{}, changefeed.NopPublisher{}, "underlay", [3]byte{0x90, 0xb8, 0xd0})
	if err := svc.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return svc, ipSvc
}

func TestCreateAllocatesNextFreeIPWhenUnspecified(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.Create(context.Background(), map[string]any{
		"mac":             "aa:bb:cc:dd:ee:01",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
		"network_uuid":    testNetwork,
	}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.IP == "" || n.NetworkUUID != testNetwork {
		t.Fatalf("expected bound IP on %s, got %+v", testNetwork, n)
	}
}

func TestCreateClaimsSpecificIP(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.Create(context.Background(), map[string]any{
		"mac":             "aa:bb:cc:dd:ee:02",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
		"network_uuid":    testNetwork,
		"ip":              "192.0.2.15",
	}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.IP != "192.0.2.15" {
		t.Fatalf("IP = %s, want 192.0.2.15", n.IP)
	}
}

func TestCreateGeneratesMACWhenOmitted(t *testing.T) {
	svc, _ := newTestService(t)
	n, err := svc.Create(context.Background(), map[string]any{
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
	}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.MAC == "" {
		t.Fatalf("expected generated MAC")
	}
}

func TestCreateRejectsUnderlayOnFabricNetwork(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), map[string]any{
		"mac":             "aa:bb:cc:dd:ee:03",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
		"network_uuid":    fabricNetwork,
		"underlay":        true,
	}, false)
	if err == nil || err.Kind != nerrors.KindInvalidParameters {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}

func TestCreateDemotesExistingPrimary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	belongsTo := "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"

	first, err := svc.Create(ctx, map[string]any{
		"mac":             "aa:bb:cc:dd:ee:04",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": belongsTo,
		"belongs_to_type": "zone",
		"primary":         true,
	}, false)
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if !first.Primary {
		t.Fatalf("expected first nic primary")
	}

	_, err = svc.Create(ctx, map[string]any{
		"mac":             "aa:bb:cc:dd:ee:05",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": belongsTo,
		"belongs_to_type": "zone",
		"primary":         true,
	}, false)
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	refreshed, gerr := svc.Get(ctx, "aa:bb:cc:dd:ee:04")
	if gerr != nil {
		t.Fatalf("Get: %v", gerr)
	}
	if refreshed.Primary {
		t.Fatalf("expected first nic demoted to non-primary")
	}
}

func TestUpdateRebindsIPReleasingOld(t *testing.T) {
	svc, ipSvc := newTestService(t)
	ctx := context.Background()

	n, err := svc.Create(ctx, map[string]any{
		"mac":             "aa:bb:cc:dd:ee:06",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
		"network_uuid":    testNetwork,
		"ip":              "192.0.2.11",
	}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, uerr := svc.Update(ctx, n.MAC, map[string]any{"ip": "192.0.2.12"}, false)
	if uerr != nil {
		t.Fatalf("Update: %v", uerr)
	}
	if updated.IP != "192.0.2.12" {
		t.Fatalf("IP = %s, want 192.0.2.12", updated.IP)
	}

	if _, gerr := ipSvc.Get(ctx, testNetwork, parseIP("192.0.2.11")); gerr == nil {
		t.Fatalf("expected 192.0.2.11 to be released")
	}
}

func TestDeleteReleasesIP(t *testing.T) {
	svc, ipSvc := newTestService(t)
	ctx := context.Background()

	n, err := svc.Create(ctx, map[string]any{
		"mac":             "aa:bb:cc:dd:ee:07",
		"owner_uuid":      "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"belongs_to_type": "server",
		"network_uuid":    testNetwork,
		"ip":              "192.0.2.13",
	}, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if derr := svc.Delete(ctx, n.MAC); derr != nil {
		t.Fatalf("Delete: %v", derr)
	}
	if _, gerr := svc.Get(ctx, n.MAC); gerr == nil {
		t.Fatalf("expected nic to be gone")
	}
	if _, gerr := ipSvc.Get(ctx, testNetwork, parseIP("192.0.2.13")); gerr == nil {
		t.Fatalf("expected 192.0.2.13 to be released")
	}
}
