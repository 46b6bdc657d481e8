// Package overlay declares the shape of records written to the
// overlay-mapping and underlay-mapping stores, and the narrow interface
// the NIC model writes them through. The stores themselves are external
// collaborators per spec.md §1 — only the record shape and write
// contract are specified.
package overlay

import "context"

// VXLANPort is the well-known VXLAN UDP port used in underlay mapping
// records.
const VXLANPort = 4789

// Mapping is an overlay-network address mapping entry: which compute
// node (CNUUID) currently hosts MAC/IP on the given VNet, or a tombstone
// when Deleted is true.
type Mapping struct {
	CNUUID  string
	IP      string
	MAC     string
	VNetID  int
	Deleted bool
}

// UnderlayMapping records the VXLAN endpoint for a compute node.
type UnderlayMapping struct {
	CNUUID string
	IP     string
	Port   int
}

// Publisher is the narrow interface the NIC model writes mapping
// records through. Implementations may batch these however they like;
// the domain layer only requires that a call returns once the record is
// durably accepted.
type Publisher interface {
	PutMapping(ctx context.Context, m Mapping) error
	PutUnderlayMapping(ctx context.Context, m UnderlayMapping) error
	DeleteUnderlayMapping(ctx context.Context, cnUUID string) error
}

// NopPublisher discards every write. Useful for tests and for
// deployments that have not wired a real overlay-mapping store.
type NopPublisher struct{}

func (NopPublisher) PutMapping(ctx context.Context, m Mapping) error                { return nil }
func (NopPublisher) PutUnderlayMapping(ctx context.Context, m UnderlayMapping) error { return nil }
func (NopPublisher) DeleteUnderlayMapping(ctx context.Context, cnUUID string) error  { return nil }
