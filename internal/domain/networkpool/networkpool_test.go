package networkpool

import (
	"context"
	"testing"

	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/store/memstore"
)

type fakeLookup struct {
	networks map[string]NetworkInfo
}

func (f fakeLookup) GetUnfiltered(ctx context.Context, uuid string) (NetworkInfo, *nerrors.Error) {
	n, ok := f.networks[uuid]
	if !ok {
		return NetworkInfo{}, nerrors.NotFound("network", uuid)
	}
	return n, nil
}

func newTestService(t *testing.T, networks map[string]NetworkInfo) *Service {
	t.Helper()
	st := memstore.New()
	svc := New(st, fakeLookup{networks: networks}, changefeed.NopPublisher{})
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return svc
}

const (
	net1 = "11111111-1111-1111-1111-111111111111"
	net2 = "22222222-2222-2222-2222-222222222222"
	net3 = "33333333-3333-3333-3333-333333333333"
	own1 = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	own2 = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
)

func TestCreateJoinsNICTagsPresent(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{
		net1: {UUID: net1, Family: "ipv4", NICTag: "external"},
		net2: {UUID: net2, Family: "ipv4", NICTag: "internal"},
	})
	p, err := svc.Create(context.Background(), map[string]any{
		"name":     "pool1",
		"networks": []any{net1, net2},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Family != "ipv4" {
		t.Fatalf("Family = %s, want ipv4", p.Family)
	}
	if len(p.NICTagsPresent) != 2 || p.NICTagsPresent[0] != "external" || p.NICTagsPresent[1] != "internal" {
		t.Fatalf("NICTagsPresent = %v", p.NICTagsPresent)
	}
}

func TestCreateRejectsMixedFamily(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{
		net1: {UUID: net1, Family: "ipv4"},
		net2: {UUID: net2, Family: "ipv6"},
	})
	_, err := svc.Create(context.Background(), map[string]any{
		"name":     "pool1",
		"networks": []any{net1, net2},
	})
	if err == nil || err.Kind != nerrors.KindInvalidParameters {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}

func TestCreateRejectsUnknownNetwork(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{net1: {UUID: net1, Family: "ipv4"}})
	_, err := svc.Create(context.Background(), map[string]any{
		"name":     "pool1",
		"networks": []any{net1, net3},
	})
	if err == nil || err.Kind != nerrors.KindInvalidParameters {
		t.Fatalf("expected InvalidParameters for unknown network, got %v", err)
	}
}

func TestCreateEnforcesOwnerSubsetOfIntersection(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{
		net1: {UUID: net1, Family: "ipv4", OwnerUUIDs: []string{own1, own2}},
		net2: {UUID: net2, Family: "ipv4", OwnerUUIDs: []string{own1}},
	})
	// own2 is not in net2's owner set, so a pool owned by own2 should be rejected.
	_, err := svc.Create(context.Background(), map[string]any{
		"name":        "pool1",
		"networks":    []any{net1, net2},
		"owner_uuids": []any{own2},
	})
	if err == nil || err.Kind != nerrors.KindInvalidParameters {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}

	// own1 is in both, so it is permitted.
	p, err2 := svc.Create(context.Background(), map[string]any{
		"name":        "pool2",
		"networks":    []any{net1, net2},
		"owner_uuids": []any{own1},
	})
	if err2 != nil {
		t.Fatalf("Create: %v", err2)
	}
	if len(p.OwnerUUIDs) != 1 || p.OwnerUUIDs[0] != own1 {
		t.Fatalf("OwnerUUIDs = %v", p.OwnerUUIDs)
	}
}

func TestCreateTreatsNoOwnersAsAllOwners(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{
		net1: {UUID: net1, Family: "ipv4"}, // no owners: "all owners"
		net2: {UUID: net2, Family: "ipv4", OwnerUUIDs: []string{own2}},
	})
	_, err := svc.Create(context.Background(), map[string]any{
		"name":        "pool1",
		"networks":    []any{net1, net2},
		"owner_uuids": []any{own2},
	})
	if err != nil {
		t.Fatalf("expected success when one member has no owners, got %v", err)
	}
}

func TestUpdateRejectsFamilyChange(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{
		net1: {UUID: net1, Family: "ipv4"},
		net3: {UUID: net3, Family: "ipv6"},
	})
	p, err := svc.Create(context.Background(), map[string]any{
		"name":     "pool1",
		"networks": []any{net1},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, uerr := svc.Update(context.Background(), p.UUID, map[string]any{"networks": []any{net3}})
	if uerr == nil || uerr.Kind != nerrors.KindInvalidParameters {
		t.Fatalf("expected InvalidParameters for family change, got %v", uerr)
	}
}

func TestDeleteIsUnconditional(t *testing.T) {
	svc := newTestService(t, map[string]NetworkInfo{net1: {UUID: net1, Family: "ipv4"}})
	p, err := svc.Create(context.Background(), map[string]any{
		"name":     "pool1",
		"networks": []any{net1},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if derr := svc.Delete(context.Background(), p.UUID); derr != nil {
		t.Fatalf("Delete: %v", derr)
	}
	if _, gerr := svc.Get(context.Background(), p.UUID); gerr == nil {
		t.Fatalf("expected pool to be gone after delete")
	}
}
