// Package integration_test exercises the domain services of
// internal/domain/* together, against an in-memory store, the way a
// client driving the full HTTP surface would: create a NIC tag,
// create a network on it, claim and release addresses, provision
// NICs, and tear the chain back down.
package integration_test

import (
	"context"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/TritonDataCenter/napi-go/internal/domain/aggregation"
	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/network"
	"github.com/TritonDataCenter/napi-go/internal/domain/nic"
	"github.com/TritonDataCenter/napi-go/internal/domain/nictag"
	"github.com/TritonDataCenter/napi-go/internal/domain/overlay"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/store/memstore"
)

type harness struct {
	tags *nictag.Service
	ips  *ipalloc.Service
	nets *network.Service
	nics *nic.Service
	aggs *aggregation.Service
	ctx  context.Context
}

func newHarness() *harness {
	ctx := context.Background()
	st := memstore.New()

	tags := nictag.New(st, changefeed.NopPublisher{})
	Expect(tags.Init(ctx)).To(Succeed())

	ips := ipalloc.New(st, 5)
	nets := network.New(st, ips, tags, changefeed.NopPublisher{}, true)
	Expect(nets.Init(ctx)).To(Succeed())

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
	nics := nic.New(st, ips, lookup, overlay.NopPublisher{}, changefeed.NopPublisher{}, "underlay", [3]byte{0x90, 0xb8, 0xd0})
	Expect(nics.Init(ctx)).To(Succeed())

	aggs := aggregation.New(st, nics, changefeed.NopPublisher{})
	Expect(aggs.Init(ctx)).To(Succeed())

	return &harness{tags: tags, ips: ips, nets: nets, nics: nics, aggs: aggs, ctx: ctx}
}

var _ = Describe("reserve the gateway and resolvers at creation", func() {
	It("reserves gateway, in-subnet resolver and broadcast, but not an out-of-subnet resolver", func() {
		h := newHarness()
		_, terr := h.tags.Create(h.ctx, "external", 1500)
		Expect(terr).To(BeNil())

		n, nerr := h.nets.Create(h.ctx, map[string]any{
			"name": "net1", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
			"subnet": "192.0.2.0/24", "provision_start_ip": "192.0.2.5", "provision_end_ip": "192.0.2.250",
			"gateway": "192.0.2.1", "resolvers": []any{"1.2.3.4", "192.0.2.2"},
		})
		Expect(nerr).To(BeNil())

		gw, gerr := h.ips.Get(h.ctx, n.UUID, net.ParseIP("192.0.2.1"))
		Expect(gerr).To(BeNil())
		Expect(gw.Reserved).To(BeTrue())
		Expect(gw.Free()).To(BeFalse())

		resolver, rerr := h.ips.Get(h.ctx, n.UUID, net.ParseIP("192.0.2.2"))
		Expect(rerr).To(BeNil())
		Expect(resolver.Reserved).To(BeTrue())

		bcast, berr := h.ips.Get(h.ctx, n.UUID, net.ParseIP("192.0.2.255"))
		Expect(berr).To(BeNil())
		Expect(bcast.Reserved).To(BeTrue())

		_, oerr := h.ips.Get(h.ctx, n.UUID, net.ParseIP("1.2.3.4"))
		Expect(oerr).ToNot(BeNil())
		Expect(oerr.Kind).To(Equal(nerrors.KindNotFound))
	})
})

var _ = Describe("next-free allocation order and reuse after delete", func() {
	It("allocates in ascending order and reuses a freed address", func() {
		h := newHarness()
		h.tags.Create(h.ctx, "external", 1500)
		n, _ := h.nets.Create(h.ctx, map[string]any{
			"name": "net2", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
			"subnet": "192.0.2.0/24", "provision_start_ip": "192.0.2.5", "provision_end_ip": "192.0.2.250",
		})

		mk := func(belongsTo string) nic.NIC {
			created, cerr := h.nics.Create(h.ctx, map[string]any{
				"network_uuid": n.UUID, "owner_uuid": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
				"belongs_to_uuid": belongsTo, "belongs_to_type": "server",
			}, false)
			Expect(cerr).To(BeNil())
			return created
		}

		first := mk("11111111-1111-1111-1111-111111111111")
		second := mk("22222222-2222-2222-2222-222222222222")
		third := mk("33333333-3333-3333-3333-333333333333")

		Expect(first.IP).To(Equal("192.0.2.5"))
		Expect(second.IP).To(Equal("192.0.2.6"))
		Expect(third.IP).To(Equal("192.0.2.7"))

		Expect(h.nics.Delete(h.ctx, second.MAC)).To(BeNil())

		reused := mk("44444444-4444-4444-4444-444444444444")
		Expect(reused.IP).To(Equal("192.0.2.6"))
	})
})

var _ = Describe("moving the provision range relocates boundary placeholders", func() {
	It("stops handing out addresses above the new end", func() {
		h := newHarness()
		h.tags.Create(h.ctx, "external", 1500)
		n, _ := h.nets.Create(h.ctx, map[string]any{
			"name": "net3", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
			"subnet": "192.0.2.0/24", "provision_start_ip": "192.0.2.5", "provision_end_ip": "192.0.2.250",
		})

		_, uerr := h.nets.Update(h.ctx, n.UUID, map[string]any{"provision_end_ip": "192.0.2.100"})
		Expect(uerr).To(BeNil())

		placeholder, perr := h.ips.Get(h.ctx, n.UUID, net.ParseIP("192.0.2.101"))
		Expect(perr).To(BeNil())
		Expect(placeholder.Placeholder).To(BeTrue())

		rec, aerr := h.ips.AllocateNextFree(h.ctx, n.UUID, net.ParseIP("192.0.2.5"), net.ParseIP("192.0.2.100"),
			"bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb", "server", "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
		Expect(aerr).To(BeNil())
		Expect(rec.Address.String()).To(Equal("192.0.2.5"))
	})
})

var _ = Describe("subnet overlap", func() {
	It("rejects an overlapping non-RFC1918 classical network but allows overlapping RFC1918 networks", func() {
		h := newHarness()
		h.tags.Create(h.ctx, "external", 1500)

		a, aerr := h.nets.Create(h.ctx, map[string]any{
			"name": "netA", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
			"subnet": "198.51.100.0/22", "provision_start_ip": "198.51.100.5", "provision_end_ip": "198.51.103.250",
		})
		Expect(aerr).To(BeNil())

		_, berr := h.nets.Create(h.ctx, map[string]any{
			"name": "netB", "nic_tag": "external", "vlan_id": 4, "family": "ipv4",
			"subnet": "198.51.101.0/24", "provision_start_ip": "198.51.101.5", "provision_end_ip": "198.51.101.250",
		})
		Expect(berr).ToNot(BeNil())
		Expect(berr.Kind).To(Equal(nerrors.KindNetworkOverlap))
		Expect(berr.ToPayload().Refs).To(ContainElement(a.UUID))

		c1, cerr1 := h.nets.Create(h.ctx, map[string]any{
			"name": "netC1", "nic_tag": "external", "vlan_id": 2, "family": "ipv4",
			"subnet": "10.0.0.0/24", "provision_start_ip": "10.0.0.5", "provision_end_ip": "10.0.0.250",
		})
		Expect(cerr1).To(BeNil())
		_, cerr2 := h.nets.Create(h.ctx, map[string]any{
			"name": "netC2", "nic_tag": "external", "vlan_id": 3, "family": "ipv4",
			"subnet": "10.0.0.0/25", "provision_start_ip": "10.0.0.5", "provision_end_ip": "10.0.0.120",
		})
		Expect(cerr2).To(BeNil())
		_ = c1
	})
})

var _ = Describe("immutable fields", func() {
	It("rejects updates to vlan_id and subnet", func() {
		h := newHarness()
		h.tags.Create(h.ctx, "external", 1500)
		n, _ := h.nets.Create(h.ctx, map[string]any{
			"name": "net4", "nic_tag": "external", "vlan_id": 0, "family": "ipv4",
			"subnet": "192.0.2.0/24", "provision_start_ip": "192.0.2.5", "provision_end_ip": "192.0.2.250",
		})

		_, verr := h.nets.Update(h.ctx, n.UUID, map[string]any{"vlan_id": 99})
		Expect(verr).ToNot(BeNil())
		Expect(verr.Kind).To(Equal(nerrors.KindInvalidParameters))

		_, serr := h.nets.Update(h.ctx, n.UUID, map[string]any{"subnet": "198.51.100.0/24"})
		Expect(serr).ToNot(BeNil())
		Expect(serr.Kind).To(Equal(nerrors.KindInvalidParameters))
	})
})

var _ = Describe("referential integrity across tag, network and nic", func() {
	It("refuses deletion while referenced, then unwinds cleanly", func() {
		h := newHarness()
		_, terr := h.tags.Create(h.ctx, "dc1", 1500)
		Expect(terr).To(BeNil())

		n, nerr := h.nets.Create(h.ctx, map[string]any{
			"name": "net5", "nic_tag": "dc1", "vlan_id": 0, "family": "ipv4",
			"subnet": "203.0.113.0/24", "provision_start_ip": "203.0.113.5", "provision_end_ip": "203.0.113.250",
		})
		Expect(nerr).To(BeNil())

		created, cerr := h.nics.Create(h.ctx, map[string]any{
			"network_uuid": n.UUID, "owner_uuid": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
			"belongs_to_uuid": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb", "belongs_to_type": "server",
		}, false)
		Expect(cerr).To(BeNil())

		terr2 := h.tags.Delete(h.ctx, "dc1")
		Expect(terr2).ToNot(BeNil())
		Expect(terr2.Kind).To(Equal(nerrors.KindInUse))
		Expect(terr2.ToPayload().Refs).To(ContainElement(n.UUID))

		nerr2 := h.nets.Delete(h.ctx, n.UUID)
		Expect(nerr2).ToNot(BeNil())
		Expect(nerr2.Kind).To(Equal(nerrors.KindInUse))
		Expect(nerr2.ToPayload().Refs).To(ContainElement(created.MAC))

		Expect(h.nics.Delete(h.ctx, created.MAC)).To(BeNil())
		Expect(h.nets.Delete(h.ctx, n.UUID)).To(BeNil())
		Expect(h.tags.Delete(h.ctx, "dc1")).To(BeNil())
	})
})
