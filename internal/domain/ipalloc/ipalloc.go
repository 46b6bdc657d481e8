// Package ipalloc implements the IP allocator of spec.md §4.5: a
// per-network sub-bucket of IP records, CAS-based claiming of a specific
// address, next-free scanning with gap detection bounded by placeholder
// records at the provision-range edges, and release semantics that
// respect the reserved flag. The scan-for-a-gap-then-CAS-claim shape
// mirrors the allocation algorithm in the wider retrieval pack's
// MikeSpreitzer-kube-examples kos IPAM controller; the bounded-retry
// contention metric below is grounded on that controller's
// prometheus.HistogramVec usage.
package ipalloc

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TritonDataCenter/napi-go/internal/cidrutil"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/store"
)

// Record is an IP record within a network's sub-bucket.
type Record struct {
	Address       net.IP
	Reserved      bool
	Placeholder   bool
	BelongsToUUID string
	BelongsToType string
	OwnerUUID     string
	Etag          store.Etag
}

// Free reports whether the record is unowned and claimable by next-free
// allocation.
func (r Record) Free() bool { return r.BelongsToUUID == "" && !r.Placeholder && !r.Reserved }

var allocationAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "napi",
	Subsystem: "ipalloc",
	Name:      "claim_attempts",
	Help:      "Number of CAS attempts taken to successfully claim an IP address.",
	Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
}, []string{"mode"})

func init() {
	prometheus.MustRegister(allocationAttempts)
}

// Service implements the IP allocator against a single store.Store; the
// caller supplies the per-network bucket name for every call (see
// BucketFor), since bucket lifecycle is owned by the network model.
type Service struct {
	store      store.Store
	retryBound int
}

// New builds a Service with the given bounded retry count for CAS
// contention (spec.md §5: default 3 for etag conflicts; §4.5 allows a
// separate, typically larger, bound for next-free contention).
func New(st store.Store, retryBound int) *Service {
	if retryBound <= 0 {
		retryBound = 3
	}
	return &Service{store: st, retryBound: retryBound}
}

// BucketFor returns the per-network IP sub-bucket name.
func BucketFor(networkUUID string) string {
	return "ips_" + networkUUID
}

// InitBucket creates the per-network IP sub-bucket.
func (s *Service) InitBucket(ctx context.Context, networkUUID string) error {
	return s.store.InitBucket(ctx, store.BucketSchema{
		Name:    BucketFor(networkUUID),
		Version: 1,
		Indexes: map[string]store.IndexType{"address": store.IndexIP},
	})
}

// Get fetches a single IP record.
func (s *Service) Get(ctx context.Context, networkUUID string, addr net.IP) (Record, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, BucketFor(networkUUID), addr.String())
	if err != nil {
		if err == store.ErrNotFound {
			return Record{}, nerrors.NotFound("ip", addr.String())
		}
		return Record{}, nerrors.Internal(err)
	}
	return toRecord(obj), nil
}

// PlaceholderOp builds the batch op that writes a boundary placeholder
// record at addr; the caller appends it to a batch and commits it.
// Placeholders are skipped by next-free search but bound the gap scan at
// the edges of the provision range.
func PlaceholderOp(networkUUID string, addr net.IP) store.Op {
	return store.Op{
		Kind:   store.OpPut,
		Bucket: BucketFor(networkUUID),
		Key:    addr.String(),
		Value:  recordValue(addr, false, "", "", "", true),
		Etag:   store.Null(),
	}
}

// ReservedOp builds the batch op that reserves addr (gateway, in-subnet
// resolver, or broadcast) at network-creation time.
func ReservedOp(networkUUID string, addr net.IP, ownerUUID string) store.Op {
	return store.Op{
		Kind:   store.OpPut,
		Bucket: BucketFor(networkUUID),
		Key:    addr.String(),
		Value:  recordValue(addr, true, "", "other", ownerUUID, false),
		Etag:   store.Null(),
	}
}

// ClaimSpecific claims addr for the given ownership. If the address is
// free or absent it is claimed outright; if reserved, the claimer must
// match the existing owner or be the admin (caller resolves admin
// status before calling); if occupied by a different owner, UsedBy is
// returned. Rebinding by the same owner (belongsToUUID matches) is
// treated as an idempotent CAS update.
func (s *Service) ClaimSpecific(ctx context.Context, networkUUID string, addr net.IP, belongsToUUID, belongsToType, ownerUUID string, callerIsAdmin bool) (Record, *nerrors.Error) {
	bucket := BucketFor(networkUUID)
	key := addr.String()

	for attempt := 0; attempt < s.retryBound; attempt++ {
		obj, err := s.store.GetObject(ctx, bucket, key)
		if err == store.ErrNotFound {
			value := recordValue(addr, false, belongsToUUID, belongsToType, ownerUUID, false)
			if _, putErr := s.store.PutObject(ctx, bucket, key, value, store.Null()); putErr != nil {
				if putErr == store.ErrEtagConflict {
					continue
				}
				return Record{}, nerrors.Internal(putErr)
			}
			observeClaimAttempts("specific", attempt+1)
			return s.Get(ctx, networkUUID, addr)
		}
		if err != nil {
			return Record{}, nerrors.Internal(err)
		}

		rec := toRecord(obj)
		if rec.Placeholder {
			return Record{}, nerrors.New(nerrors.KindInvalidParameters, "%s is a placeholder boundary address and cannot be claimed", key)
		}
		sameOwner := rec.BelongsToUUID != "" && rec.BelongsToUUID == belongsToUUID
		reservedClaimable := rec.Reserved && rec.BelongsToUUID == "" && (rec.OwnerUUID == "" || rec.OwnerUUID == ownerUUID || callerIsAdmin)
		if rec.BelongsToUUID != "" && !sameOwner {
			return Record{}, usedByError(key, rec.BelongsToUUID)
		}
		if rec.Reserved && !sameOwner && !reservedClaimable {
			return Record{}, usedByError(key, rec.BelongsToUUID)
		}
		if !rec.Reserved && !sameOwner && !rec.Free() {
			return Record{}, usedByError(key, rec.BelongsToUUID)
		}

		value := recordValue(addr, rec.Reserved, belongsToUUID, belongsToType, ownerUUID, false)
		if _, putErr := s.store.PutObject(ctx, bucket, key, value, store.Match(obj.Etag)); putErr != nil {
			if putErr == store.ErrEtagConflict {
				continue
			}
			return Record{}, nerrors.Internal(putErr)
		}
		observeClaimAttempts("specific", attempt+1)
		return s.Get(ctx, networkUUID, addr)
	}
	return Record{}, nerrors.EtagConflict(bucket, key)
}

func usedByError(addr, holder string) *nerrors.Error {
	return nerrors.InvalidParameters([]nerrors.FieldError{{
		Field:   "ip",
		Code:    nerrors.CodeUsedBy,
		Message: addr + " is already in use",
		Invalid: holder,
	}})
}

// AllocateNextFree finds and claims the first free address within
// [provisionStart, provisionEnd] inclusive, using placeholder records at
// provisionStart-1 and provisionEnd+1 to bound the scan.
func (s *Service) AllocateNextFree(ctx context.Context, networkUUID string, provisionStart, provisionEnd net.IP, belongsToUUID, belongsToType, ownerUUID string) (Record, *nerrors.Error) {
	bucket := BucketFor(networkUUID)
	lowerBound := cidrutil.Dec(provisionStart)
	upperBound := cidrutil.Inc(provisionEnd)

	for attempt := 0; attempt < s.retryBound; attempt++ {
		objs, err := s.store.FindObjects(ctx, bucket, nil, store.FindOptions{Sort: "address_sort"})
		if err != nil {
			return Record{}, nerrors.Internal(err)
		}

		prev := lowerBound
		var candidate net.IP
		for _, o := range objs {
			rec := toRecord(o)
			if !cidrutil.Within(rec.Address, lowerBound, upperBound) {
				continue
			}
			if cidrutil.Less(cidrutil.Inc(prev), rec.Address) {
				candidate = cidrutil.Inc(prev)
				break
			}
			prev = rec.Address
		}
		if candidate == nil && cidrutil.Less(prev, upperBound) {
			candidate = cidrutil.Inc(prev)
			if !cidrutil.Less(candidate, upperBound) {
				candidate = nil
			}
		}
		if candidate == nil {
			return Record{}, nerrors.SubnetFull(networkUUID)
		}

		value := recordValue(candidate, false, belongsToUUID, belongsToType, ownerUUID, false)
		if _, putErr := s.store.PutObject(ctx, bucket, candidate.String(), value, store.Null()); putErr != nil {
			if putErr == store.ErrEtagConflict {
				logging.Debug("next-free candidate lost race, retrying", "network", networkUUID, "address", candidate.String())
				continue
			}
			return Record{}, nerrors.Internal(putErr)
		}
		observeClaimAttempts("next_free", attempt+1)
		return s.Get(ctx, networkUUID, candidate)
	}
	return Record{}, nerrors.Wrap(nerrors.KindEtagConflict, nil, "AllocationContention: exhausted %d attempts allocating on network %s", s.retryBound, networkUUID)
}

// List returns every non-placeholder IP record in the network's
// sub-bucket, sorted by address.
func (s *Service) List(ctx context.Context, networkUUID string) ([]Record, *nerrors.Error) {
	objs, err := s.store.FindObjects(ctx, BucketFor(networkUUID), nil, store.FindOptions{Sort: "address_sort"})
	if err != nil {
		return nil, nerrors.Internal(err)
	}
	out := make([]Record, 0, len(objs))
	for _, o := range objs {
		rec := toRecord(o)
		if rec.Placeholder {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountPlaceholders reports the number of boundary placeholder records
// in the network's sub-bucket, for the /manage/gc diagnostic.
func (s *Service) CountPlaceholders(ctx context.Context, networkUUID string) (int, *nerrors.Error) {
	objs, err := s.store.FindObjects(ctx, BucketFor(networkUUID), store.Eq{Field: "placeholder", Value: true}, store.FindOptions{})
	if err != nil {
		if err == store.ErrBucketNotFound {
			return 0, nil
		}
		return 0, nerrors.Internal(err)
	}
	return len(objs), nil
}

// Release frees addr: if it was not reserved, the record is deleted; if
// reserved, ownership is cleared but the reservation and owner_uuid are
// retained.
func (s *Service) Release(ctx context.Context, networkUUID string, addr net.IP) *nerrors.Error {
	bucket := BucketFor(networkUUID)
	key := addr.String()

	obj, err := s.store.GetObject(ctx, bucket, key)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return nerrors.Internal(err)
	}
	rec := toRecord(obj)
	if !rec.Reserved {
		if delErr := s.store.DelObject(ctx, bucket, key, store.Match(obj.Etag)); delErr != nil && delErr != store.ErrNotFound {
			return nerrors.Internal(delErr)
		}
		return nil
	}
	value := recordValue(addr, true, "", "", rec.OwnerUUID, false)
	if _, putErr := s.store.PutObject(ctx, bucket, key, value, store.Match(obj.Etag)); putErr != nil {
		return nerrors.Internal(putErr)
	}
	return nil
}

func recordValue(addr net.IP, reserved bool, belongsToUUID, belongsToType, ownerUUID string, placeholder bool) map[string]any {
	v := map[string]any{
		"address":      addr.String(),
		"address_sort": cidrutil.SortKey(addr),
		"reserved":     reserved,
		"placeholder":  placeholder,
	}
	if belongsToUUID != "" {
		v["belongs_to_uuid"] = belongsToUUID
	}
	if belongsToType != "" {
		v["belongs_to_type"] = belongsToType
	}
	if ownerUUID != "" {
		v["owner_uuid"] = ownerUUID
	}
	return v
}

func toRecord(o store.Object) Record {
	r := Record{Etag: o.Etag}
	if a, ok := o.Value["address"].(string); ok {
		r.Address = net.ParseIP(a)
	}
	if b, ok := o.Value["reserved"].(bool); ok {
		r.Reserved = b
	}
	if p, ok := o.Value["placeholder"].(bool); ok {
		r.Placeholder = p
	}
	if b, ok := o.Value["belongs_to_uuid"].(string); ok {
		r.BelongsToUUID = b
	}
	if b, ok := o.Value["belongs_to_type"].(string); ok {
		r.BelongsToType = b
	}
	if o2, ok := o.Value["owner_uuid"].(string); ok {
		r.OwnerUUID = o2
	}
	return r
}

func observeClaimAttempts(mode string, attempts int) {
	allocationAttempts.WithLabelValues(mode).Observe(float64(attempts))
}
