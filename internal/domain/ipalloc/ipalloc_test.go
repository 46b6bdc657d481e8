package ipalloc

import (
	"context"
	"net"
	"testing"

	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/store"
	"github.com/TritonDataCenter/napi-go/internal/store/memstore"
)

func newTestService(t *testing.T, networkUUID string) *Service {
	t.Helper()
	st := memstore.New()
	svc := New(st, 10)
	if err := svc.InitBucket(context.Background(), networkUUID); err != nil {
		t.Fatalf("InitBucket: %v", err)
	}
	return svc
}

func seedBoundaries(t *testing.T, svc *Service, networkUUID string, start, end net.IP) {
	t.Helper()
	ops := []store.Op{
		PlaceholderOp(networkUUID, cidrutilDec(start)),
		PlaceholderOp(networkUUID, cidrutilInc(end)),
	}
	if err := svc.store.Batch(context.Background(), ops); err != nil {
		t.Fatalf("seed boundaries: %v", err)
	}
}

func cidrutilDec(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	out[len(out)-1]--
	return out
}

func cidrutilInc(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	out[len(out)-1]++
	return out
}

func TestClaimSpecificFreshAddress(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()

	rec, err := svc.ClaimSpecific(ctx, "net1", net.ParseIP("192.0.2.5"), "nic-1", "server", "owner-1", false)
	if err != nil {
		t.Fatalf("ClaimSpecific: %v", err)
	}
	if rec.BelongsToUUID != "nic-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestClaimSpecificUsedByDifferentOwner(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	addr := net.ParseIP("192.0.2.5")

	if _, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "server", "owner-1", false); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-2", "server", "owner-2", false)
	if err == nil || err.Kind != nerrors.KindInvalidParameters || err.Fields[0].Code != nerrors.CodeUsedBy {
		t.Fatalf("expected UsedBy error, got %v", err)
	}
}

func TestClaimSpecificSameOwnerRebinds(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	addr := net.ParseIP("192.0.2.5")

	if _, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "server", "owner-1", false); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "server", "owner-1", false); err != nil {
		t.Fatalf("expected rebind by same owner to succeed, got %v", err)
	}
}

func TestClaimSpecificReservedRejectsMismatchedNonAdminOwner(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	addr := net.ParseIP("192.0.2.1")

	if err := svc.store.Batch(ctx, []store.Op{ReservedOp("net1", addr, "owner-1")}); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	_, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "server", "owner-2", false)
	if err == nil || err.Kind != nerrors.KindInvalidParameters || err.Fields[0].Code != nerrors.CodeUsedBy {
		t.Fatalf("expected UsedBy error for mismatched-owner non-admin claim, got %v", err)
	}

	if _, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "server", "owner-1", false); err != nil {
		t.Fatalf("expected matching-owner claim to succeed, got %v", err)
	}
}

func TestClaimSpecificReservedAllowsAdminRegardlessOfOwner(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	addr := net.ParseIP("192.0.2.1")

	if err := svc.store.Batch(ctx, []store.Op{ReservedOp("net1", addr, "owner-1")}); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	if _, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "server", "owner-2", true); err != nil {
		t.Fatalf("expected admin claim to succeed regardless of owner mismatch, got %v", err)
	}
}

func TestAllocateNextFreeInOrderAndReuse(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	start := net.ParseIP("192.0.2.5").To4()
	end := net.ParseIP("192.0.2.10").To4()
	seedBoundaries(t, svc, "net1", start, end)

	var addrs []string
	for i := 0; i < 3; i++ {
		rec, err := svc.AllocateNextFree(ctx, "net1", start, end, "nic", "server", "owner-1")
		if err != nil {
			t.Fatalf("AllocateNextFree[%d]: %v", i, err)
		}
		addrs = append(addrs, rec.Address.String())
	}
	want := []string{"192.0.2.5", "192.0.2.6", "192.0.2.7"}
	for i, w := range want {
		if addrs[i] != w {
			t.Fatalf("addrs = %v, want %v", addrs, want)
		}
	}

	if err := svc.Release(ctx, "net1", net.ParseIP("192.0.2.6")); err != nil {
		t.Fatalf("Release: %v", err)
	}
	rec, err := svc.AllocateNextFree(ctx, "net1", start, end, "nic", "server", "owner-1")
	if err != nil {
		t.Fatalf("AllocateNextFree after release: %v", err)
	}
	if rec.Address.String() != "192.0.2.6" {
		t.Fatalf("expected reuse of 192.0.2.6, got %s", rec.Address)
	}
}

func TestAllocateNextFreeSubnetFull(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	start := net.ParseIP("192.0.2.5").To4()
	end := net.ParseIP("192.0.2.6").To4()
	seedBoundaries(t, svc, "net1", start, end)

	if _, err := svc.AllocateNextFree(ctx, "net1", start, end, "nic-1", "server", "owner-1"); err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	if _, err := svc.AllocateNextFree(ctx, "net1", start, end, "nic-2", "server", "owner-1"); err != nil {
		t.Fatalf("allocate 2: %v", err)
	}
	_, err := svc.AllocateNextFree(ctx, "net1", start, end, "nic-3", "server", "owner-1")
	if err == nil || err.Kind != nerrors.KindSubnetFull {
		t.Fatalf("expected SubnetFull, got %v", err)
	}
}

func TestReleaseRetainsReservation(t *testing.T) {
	svc := newTestService(t, "net1")
	ctx := context.Background()
	addr := net.ParseIP("192.0.2.1")

	ops := []store.Op{ReservedOp("net1", addr, "owner-1")}
	if err := svc.store.Batch(ctx, ops); err != nil {
		t.Fatalf("seed reserved: %v", err)
	}
	if _, err := svc.ClaimSpecific(ctx, "net1", addr, "nic-1", "other", "owner-1", false); err != nil {
		t.Fatalf("claim reserved: %v", err)
	}
	if err := svc.Release(ctx, "net1", addr); err != nil {
		t.Fatalf("Release: %v", err)
	}
	rec, err := svc.Get(ctx, "net1", addr)
	if err != nil {
		t.Fatalf("Get after release: %v", err)
	}
	if !rec.Reserved || rec.BelongsToUUID != "" || rec.OwnerUUID != "owner-1" {
		t.Fatalf("expected reservation retained with owner, got %+v", rec)
	}
}
