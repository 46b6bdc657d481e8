// Package networkpool implements the network-pool model of spec.md
// §4.6: an ordered set of 1-64 networks sharing one address family, an
// owner set that must be a subset of the intersection of member-network
// owners (a network with no owners counts as "all-owners"), and a
// computed nic_tags_present field joined from the membership at read
// time. Deletion is unconditional; pools have no downstream referrers.
package networkpool

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/store"
	"github.com/TritonDataCenter/napi-go/internal/validation"
)

const bucketName = "network_pools"

// NetworkInfo is the narrow view of a network a pool needs: its family,
// owner set and NIC tag, for membership validation and the computed
// nic_tags_present join.
type NetworkInfo struct {
	UUID       string
	Family     string
	NICTag     string
	OwnerUUIDs []string
}

// NetworkLookup is the network model's contribution to pool validation;
// internal/domain/network.PoolLookupAdapter implements it by wrapping
// network.Service.GetUnfiltered.
type NetworkLookup interface {
	GetUnfiltered(ctx context.Context, networkUUID string) (NetworkInfo, *nerrors.Error)
}

// Pool is a network pool as returned to callers.
type Pool struct {
	UUID           string
	Name           string
	Description    string
	Family         string
	Networks       []string
	OwnerUUIDs     []string
	NICTagsPresent []string
}

// Service implements the network-pool model's public operations.
type Service struct {
	store   store.Store
	lookup  NetworkLookup
	publish changefeed.Publisher
}

// New builds a Service.
func New(st store.Store, lookup NetworkLookup, pub changefeed.Publisher) *Service {
	return &Service{store: st, lookup: lookup, publish: pub}
}

// Init creates the network_pools bucket.
func (s *Service) Init(ctx context.Context) error {
	return s.store.InitBucket(ctx, store.BucketSchema{
		Name:    bucketName,
		Version: 1,
		Indexes: map[string]store.IndexType{
			"name":   store.IndexString,
			"family": store.IndexString,
		},
	})
}

func descriptionField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	return s, nil, nil
}

var createSchema = validation.Schema{
	Strict: true,
	Fields: []validation.FieldSpec{
		{Name: "name", Validator: validation.TagNameField, Required: true},
		{Name: "description", Validator: descriptionField, Required: false},
		{Name: "networks", Validator: validation.BoundedArrayField(1, 64, validation.UUIDField), Required: true},
		{Name: "owner_uuids", Validator: validation.BoundedArrayField(0, 32, validation.UUIDField), Required: false},
	},
}

// Create validates and commits a new network pool.
func (s *Service) Create(ctx context.Context, input map[string]any) (Pool, *nerrors.Error) {
	fields, verr := validation.Validate(ctx, createSchema, input)
	if verr != nil {
		return Pool{}, verr
	}
	name := fields["name"].(string)
	description, _ := fields["description"].(string)
	networkUUIDs := uuidStrings(fields["networks"])
	ownerUUIDs := uuidStrings(fields["owner_uuids"])

	members, family, nicTags, verr := s.resolveMembers(ctx, networkUUIDs)
	if verr != nil {
		return Pool{}, verr
	}
	if verr := checkOwnerSubset(ownerUUIDs, members); verr != nil {
		return Pool{}, verr
	}

	id := uuid.New().String()
	value := map[string]any{
		"uuid":        id,
		"name":        name,
		"description": description,
		"family":      family,
		"networks":    toAny(networkUUIDs),
		"owner_uuids": toAny(ownerUUIDs),
	}

	if _, err := s.store.PutObject(ctx, bucketName, id, value, store.Null()); err != nil {
		if err == store.ErrUniqueAttribute {
			return Pool{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "name", Code: nerrors.CodeDuplicateParameter, Message: "duplicate: name",
			}})
		}
		return Pool{}, nerrors.Internal(err)
	}

	logging.Info("network pool created", "uuid", id, "name", name, "networks", len(networkUUIDs))
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "network_pool", Key: id, Kind: changefeed.ChangeCreate, Value: value})
	return toPool(value, nicTags), nil
}

// Get fetches a pool by uuid, joining nic_tags_present from its members.
func (s *Service) Get(ctx context.Context, poolUUID string) (Pool, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, poolUUID)
	if err != nil {
		if err == store.ErrNotFound {
			return Pool{}, nerrors.NotFound("network_pool", poolUUID)
		}
		return Pool{}, nerrors.Internal(err)
	}
	networkUUIDs := stringsOf(obj.Value["networks"])
	_, _, nicTags, verr := s.resolveMembers(ctx, networkUUIDs)
	if verr != nil {
		logging.Warn("pool references missing network", "pool", poolUUID, "err", verr.Error())
	}
	return toPool(obj.Value, nicTags), nil
}

// List returns every pool, sorted by uuid, with nic_tags_present joined.
func (s *Service) List(ctx context.Context) ([]Pool, *nerrors.Error) {
	objs, err := s.store.FindObjects(ctx, bucketName, nil, store.FindOptions{Sort: "uuid"})
	if err != nil {
		return nil, nerrors.Internal(err)
	}
	out := make([]Pool, 0, len(objs))
	for _, o := range objs {
		networkUUIDs := stringsOf(o.Value["networks"])
		_, _, nicTags, verr := s.resolveMembers(ctx, networkUUIDs)
		if verr != nil {
			nicTags = nil
		}
		out = append(out, toPool(o.Value, nicTags))
	}
	return out, nil
}

// Update applies a partial update; changing networks re-validates family
// coherence and owner-subset rules against the new membership.
func (s *Service) Update(ctx context.Context, poolUUID string, input map[string]any) (Pool, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, poolUUID)
	if err != nil {
		if err == store.ErrNotFound {
			return Pool{}, nerrors.NotFound("network_pool", poolUUID)
		}
		return Pool{}, nerrors.Internal(err)
	}
	existing := obj.Value

	merged := map[string]any{}
	for k, v := range existing {
		merged[k] = v
	}
	networkUUIDs := stringsOf(existing["networks"])
	if raw, ok := input["networks"]; ok {
		networkUUIDs = uuidStrings(raw)
		if len(networkUUIDs) < 1 || len(networkUUIDs) > 64 {
			return Pool{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "networks", Code: nerrors.CodeInvalidParameter, Message: "must name 1-64 networks",
			}})
		}
	}
	members, family, nicTags, verr := s.resolveMembers(ctx, networkUUIDs)
	if verr != nil {
		return Pool{}, verr
	}
	existingFamily, _ := existing["family"].(string)
	if existingFamily != "" && family != existingFamily {
		return Pool{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "networks", Code: nerrors.CodeInvalidParameter, Message: "family is immutable once set",
		}})
	}

	ownerUUIDs := stringsOf(existing["owner_uuids"])
	if raw, ok := input["owner_uuids"]; ok {
		ownerUUIDs = uuidStrings(raw)
	}
	if verr := checkOwnerSubset(ownerUUIDs, members); verr != nil {
		return Pool{}, verr
	}

	merged["networks"] = toAny(networkUUIDs)
	merged["owner_uuids"] = toAny(ownerUUIDs)
	merged["family"] = family
	if name, ok := input["name"].(string); ok {
		merged["name"] = name
	}
	if desc, ok := input["description"].(string); ok {
		merged["description"] = desc
	}

	if _, err := s.store.PutObject(ctx, bucketName, poolUUID, merged, store.Match(obj.Etag)); err != nil {
		if err == store.ErrEtagConflict {
			return Pool{}, nerrors.EtagConflict(bucketName, poolUUID)
		}
		return Pool{}, nerrors.Internal(err)
	}

	logging.Info("network pool updated", "uuid", poolUUID)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "network_pool", Key: poolUUID, Kind: changefeed.ChangeUpdate, Value: merged})
	return toPool(merged, nicTags), nil
}

// Delete removes a pool unconditionally; pools have no downstream
// referrers.
func (s *Service) Delete(ctx context.Context, poolUUID string) *nerrors.Error {
	if err := s.store.DelObject(ctx, bucketName, poolUUID, store.Any()); err != nil {
		if err == store.ErrNotFound {
			return nerrors.NotFound("network_pool", poolUUID)
		}
		return nerrors.Internal(err)
	}
	logging.Info("network pool deleted", "uuid", poolUUID)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "network_pool", Key: poolUUID, Kind: changefeed.ChangeDelete})
	return nil
}

func (s *Service) resolveMembers(ctx context.Context, networkUUIDs []string) ([]NetworkInfo, string, []string, *nerrors.Error) {
	members := make([]NetworkInfo, 0, len(networkUUIDs))
	family := ""
	tagSet := map[string]bool{}
	for _, id := range networkUUIDs {
		ni, err := s.lookup.GetUnfiltered(ctx, id)
		if err != nil {
			return nil, "", nil, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "networks", Code: nerrors.CodeInvalidParameter, Message: "references unknown network " + id,
			}})
		}
		if family == "" {
			family = ni.Family
		} else if family != ni.Family {
			return nil, "", nil, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "networks", Code: nerrors.CodeInvalidParameter, Message: "all member networks must share one address family",
			}})
		}
		if ni.NICTag != "" {
			tagSet[ni.NICTag] = true
		}
		members = append(members, ni)
	}
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return members, family, tags, nil
}

// checkOwnerSubset enforces that owners (when non-empty) is a subset of
// the intersection of every member's owner set, treating a member with
// no owners as "all owners permitted".
func checkOwnerSubset(owners []string, members []NetworkInfo) *nerrors.Error {
	if len(owners) == 0 {
		return nil
	}
	for _, m := range members {
		if len(m.OwnerUUIDs) == 0 {
			continue
		}
		allowed := map[string]bool{}
		for _, o := range m.OwnerUUIDs {
			allowed[o] = true
		}
		for _, o := range owners {
			if !allowed[o] {
				return nerrors.InvalidParameters([]nerrors.FieldError{{
					Field: "owner_uuids", Code: nerrors.CodeInvalidParameter,
					Message: "owner " + o + " is not permitted on member network " + m.UUID,
				}})
			}
		}
	}
	return nil
}

func uuidStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch val := it.(type) {
		case string:
			out = append(out, val)
		case uuid.UUID:
			out = append(out, val.String())
		}
	}
	return out
}

func stringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toPool(v map[string]any, nicTags []string) Pool {
	p := Pool{}
	p.UUID, _ = v["uuid"].(string)
	p.Name, _ = v["name"].(string)
	p.Description, _ = v["description"].(string)
	p.Family, _ = v["family"].(string)
	p.Networks = stringsOf(v["networks"])
	p.OwnerUUIDs = stringsOf(v["owner_uuids"])
	p.NICTagsPresent = nicTags
	return p
}
