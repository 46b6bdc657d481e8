// Package changefeed declares the change-notification publisher every
// write path calls after a successful commit, and the VL2-shootdown
// event shape emitted when a fabric NIC's compute node changes (spec.md
// §4.7). Like overlay, the publisher itself is an external collaborator;
// only the event shapes and call contract are specified here.
package changefeed

import "context"

// ChangeKind names the mutation that occurred.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is a single published change event.
type Change struct {
	Resource string // "nic_tag", "network", "network_pool", "nic", "aggregation"
	Key      string
	Kind     ChangeKind
	Value    map[string]any
}

// ShootdownEvent notifies a fabric compute node that a VNet mapping
// changed and any cached overlay state for that vnet should be dropped.
type ShootdownEvent struct {
	CNUUID string
	VNetID int
}

// Publisher is the narrow interface write paths call after a commit.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
	Shootdown(ctx context.Context, event ShootdownEvent) error
}

// NopPublisher discards every event. Useful for tests and for
// deployments that have not wired a real change-notification bus.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, change Change) error     { return nil }
func (NopPublisher) Shootdown(ctx context.Context, event ShootdownEvent) error { return nil }
