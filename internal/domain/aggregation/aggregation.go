// Package aggregation implements the link-aggregation-group CRUD of
// spec.md §6: a named grouping of a server's NICs with no allocation
// semantics of its own (no IP, no MAC minting) — grounded on the NIC
// model's own CRUD shape, keyed by "<server_uuid>-<name>" instead of a
// MAC.
package aggregation

import (
	"context"
	"sort"

	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/macaddr"
	"github.com/TritonDataCenter/napi-go/internal/store"
)

const bucketName = "aggregations"

// NICLookup is the narrow view of the NIC model an aggregation needs:
// confirmation that a member MAC actually exists.
type NICLookup interface {
	Exists(ctx context.Context, macStr string) bool
}

// Aggregation is a link-aggregation group as returned to callers.
type Aggregation struct {
	ID         string
	Name       string
	ServerUUID string
	MACs       []string
	LACPMode   string
}

// Service implements the aggregation model's public operations.
type Service struct {
	store   store.Store
	nics    NICLookup
	publish changefeed.Publisher
}

// New builds a Service backed by st, validating member MACs via nics.
func New(st store.Store, nics NICLookup, pub changefeed.Publisher) *Service {
	return &Service{store: st, nics: nics, publish: pub}
}

// Init creates the aggregations bucket.
func (s *Service) Init(ctx context.Context) error {
	return s.store.InitBucket(ctx, store.BucketSchema{
		Name:    bucketName,
		Version: 1,
		Indexes: map[string]store.IndexType{"server_uuid": store.IndexString},
	})
}

func idFor(serverUUID, name string) string { return serverUUID + "-" + name }

// Create defines a new aggregation of serverUUID's NICs.
func (s *Service) Create(ctx context.Context, serverUUID, name string, macs []string, lacpMode string) (Aggregation, *nerrors.Error) {
	if serverUUID == "" || name == "" {
		return Aggregation{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeMissingParameter, Message: "name and server_uuid are required",
		}})
	}
	normalized, verr := s.normalizeMACs(ctx, macs)
	if verr != nil {
		return Aggregation{}, verr
	}
	id := idFor(serverUUID, name)
	value := map[string]any{
		"id": id, "name": name, "server_uuid": serverUUID,
		"macs": toAny(normalized), "lacp_mode": lacpMode,
	}
	if _, err := s.store.PutObject(ctx, bucketName, id, value, store.Null()); err != nil {
		if err == store.ErrNotFound || err == store.ErrEtagConflict {
			return Aggregation{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "name", Code: nerrors.CodeDuplicateParameter, Message: "an aggregation with this id already exists",
			}})
		}
		return Aggregation{}, nerrors.Internal(err)
	}
	logging.Info("aggregation created", "id", id, "macs", len(normalized))
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "aggregation", Key: id, Kind: changefeed.ChangeCreate, Value: value})
	return toAggregation(value), nil
}

// Get fetches an aggregation by id ("<server_uuid>-<name>").
func (s *Service) Get(ctx context.Context, id string) (Aggregation, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, id)
	if err != nil {
		if err == store.ErrNotFound {
			return Aggregation{}, nerrors.NotFound("aggregation", id)
		}
		return Aggregation{}, nerrors.Internal(err)
	}
	return toAggregation(obj.Value), nil
}

// List returns every aggregation, optionally narrowed to one server,
// sorted by id.
func (s *Service) List(ctx context.Context, serverUUID string) ([]Aggregation, *nerrors.Error) {
	var f store.Filter
	if serverUUID != "" {
		f = store.Eq{Field: "server_uuid", Value: serverUUID}
	}
	objs, err := s.store.FindObjects(ctx, bucketName, f, store.FindOptions{Sort: "id"})
	if err != nil {
		return nil, nerrors.Internal(err)
	}
	out := make([]Aggregation, len(objs))
	for i, o := range objs {
		out[i] = toAggregation(o.Value)
	}
	return out, nil
}

// Update replaces the member MACs and/or LACP mode of an existing
// aggregation; the id (server_uuid, name) is immutable.
func (s *Service) Update(ctx context.Context, id string, macs []string, lacpMode string) (Aggregation, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, id)
	if err != nil {
		if err == store.ErrNotFound {
			return Aggregation{}, nerrors.NotFound("aggregation", id)
		}
		return Aggregation{}, nerrors.Internal(err)
	}
	merged := map[string]any{}
	for k, v := range obj.Value {
		merged[k] = v
	}
	if macs != nil {
		normalized, verr := s.normalizeMACs(ctx, macs)
		if verr != nil {
			return Aggregation{}, verr
		}
		merged["macs"] = toAny(normalized)
	}
	if lacpMode != "" {
		merged["lacp_mode"] = lacpMode
	}
	if _, err := s.store.PutObject(ctx, bucketName, id, merged, store.Match(obj.Etag)); err != nil {
		if err == store.ErrEtagConflict {
			return Aggregation{}, nerrors.EtagConflict(bucketName, id)
		}
		return Aggregation{}, nerrors.Internal(err)
	}
	logging.Info("aggregation updated", "id", id)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "aggregation", Key: id, Kind: changefeed.ChangeUpdate, Value: merged})
	return toAggregation(merged), nil
}

// Delete removes an aggregation; aggregations have no downstream
// referrers.
func (s *Service) Delete(ctx context.Context, id string) *nerrors.Error {
	if err := s.store.DelObject(ctx, bucketName, id, store.Any()); err != nil {
		if err == store.ErrNotFound {
			return nerrors.NotFound("aggregation", id)
		}
		return nerrors.Internal(err)
	}
	logging.Info("aggregation deleted", "id", id)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "aggregation", Key: id, Kind: changefeed.ChangeDelete})
	return nil
}

func (s *Service) normalizeMACs(ctx context.Context, macs []string) ([]string, *nerrors.Error) {
	out := make([]string, 0, len(macs))
	for _, m := range macs {
		parsed, err := macaddr.Parse(m)
		if err != nil {
			return nil, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "macs", Code: nerrors.CodeInvalidParameter, Message: "malformed mac: " + m,
			}})
		}
		canonical := parsed.String()
		if s.nics != nil && !s.nics.Exists(ctx, canonical) {
			return nil, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "macs", Code: nerrors.CodeInvalidParameter, Message: "no such nic: " + canonical,
			}})
		}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out, nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func toAggregation(v map[string]any) Aggregation {
	a := Aggregation{}
	a.ID, _ = v["id"].(string)
	a.Name, _ = v["name"].(string)
	a.ServerUUID, _ = v["server_uuid"].(string)
	a.LACPMode, _ = v["lacp_mode"].(string)
	if raw, ok := v["macs"].([]any); ok {
		for _, m := range raw {
			if str, ok := m.(string); ok {
				a.MACs = append(a.MACs, str)
			}
		}
	}
	return a
}
