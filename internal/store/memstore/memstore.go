// Package memstore is an in-memory implementation of store.Store used
// for unit and integration tests and local development. It has no
// persistence and no real concurrency control beyond a store-wide mutex —
// a direct, synchronous stand-in for the external KV system the
// production backend (mongostore) talks to over the wire.
package memstore

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/TritonDataCenter/napi-go/internal/store"
)

type bucket struct {
	schema  store.BucketSchema
	objects map[string]store.Object
}

// Store is a concurrency-safe, process-local store.Store.
type Store struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	nextSeq uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{buckets: map[string]*bucket{}}
}

func (s *Store) newEtag() store.Etag {
	s.nextSeq++
	return store.Etag(strconv.FormatUint(s.nextSeq, 36))
}

func (s *Store) bucket(name string) (*bucket, error) {
	b, ok := s.buckets[name]
	if !ok {
		return nil, store.ErrBucketNotFound
	}
	return b, nil
}

func (s *Store) InitBucket(ctx context.Context, schema store.BucketSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.buckets[schema.Name]; ok {
		if schema.Version > existing.schema.Version {
			existing.schema = schema
		}
		return nil
	}
	s.buckets[schema.Name] = &bucket{schema: schema, objects: map[string]store.Object{}}
	return nil
}

func (s *Store) GetObject(ctx context.Context, bucketName, key string) (store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucketName)
	if err != nil {
		return store.Object{}, err
	}
	obj, ok := b.objects[key]
	if !ok {
		return store.Object{}, store.ErrNotFound
	}
	return cloneObject(obj), nil
}

func (s *Store) PutObject(ctx context.Context, bucketName, key string, value map[string]any, precond store.EtagPrecondition) (store.Etag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucketName)
	if err != nil {
		return "", err
	}
	if err := s.checkPrecondition(b, key, precond); err != nil {
		return "", err
	}
	if err := checkUniqueIndexes(b, key, value, uniqueFieldsFor(b.schema)); err != nil {
		return "", err
	}
	etag := s.newEtag()
	b.objects[key] = store.Object{Bucket: bucketName, Key: key, Value: cloneValue(value), Etag: etag}
	return etag, nil
}

func (s *Store) DelObject(ctx context.Context, bucketName, key string, precond store.EtagPrecondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucketName)
	if err != nil {
		return err
	}
	if _, ok := b.objects[key]; !ok {
		return store.ErrNotFound
	}
	if err := s.checkPrecondition(b, key, precond); err != nil {
		return err
	}
	delete(b.objects, key)
	return nil
}

func (s *Store) checkPrecondition(b *bucket, key string, precond store.EtagPrecondition) error {
	existing, exists := b.objects[key]
	if precond.IsNull() {
		if exists {
			return store.ErrEtagConflict
		}
		return nil
	}
	if want, ok := precond.Value(); ok {
		if !exists || existing.Etag != want {
			return store.ErrEtagConflict
		}
	}
	return nil
}

// uniqueFieldsFor reports which value fields must be unique across the
// bucket, derived from the schema's declared indexes. memstore treats
// every declared index as advisory except the unique-by-convention
// "name" and "mac" indexes, matching the domain services' own
// choice of which attributes they declare unique (NIC-tag/network names,
// NIC MAC, etc).
func uniqueFieldsFor(schema store.BucketSchema) []string {
	var fields []string
	for name := range schema.Indexes {
		if name == "name" || name == "mac" {
			fields = append(fields, name)
		}
	}
	return fields
}

func checkUniqueIndexes(b *bucket, key string, value map[string]any, uniqueFields []string) error {
	for _, f := range uniqueFields {
		want, ok := value[f]
		if !ok {
			continue
		}
		for k, obj := range b.objects {
			if k == key {
				continue
			}
			if got, ok := obj.Value[f]; ok && got == want {
				return store.ErrUniqueAttribute
			}
		}
	}
	return nil
}

// Batch applies ops atomically: every op is checked against its
// precondition before any mutation is applied, so a conflict on op N
// leaves ops 0..N-1 untouched.
func (s *Store) Batch(ctx context.Context, ops []store.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketsByOp := make([]*bucket, len(ops))
	for i, op := range ops {
		b, err := s.bucket(op.Bucket)
		if err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
		bucketsByOp[i] = b
		switch op.Kind {
		case store.OpPut:
			if err := s.checkPrecondition(b, op.Key, op.Etag); err != nil {
				return fmt.Errorf("batch op %d (%s/%s): %w", i, op.Bucket, op.Key, err)
			}
			if err := checkUniqueIndexes(b, op.Key, op.Value, op.Indexed); err != nil {
				return fmt.Errorf("batch op %d (%s/%s): %w", i, op.Bucket, op.Key, err)
			}
		case store.OpDelete:
			if _, ok := b.objects[op.Key]; !ok {
				return fmt.Errorf("batch op %d (%s/%s): %w", i, op.Bucket, op.Key, store.ErrNotFound)
			}
			if err := s.checkPrecondition(b, op.Key, op.Etag); err != nil {
				return fmt.Errorf("batch op %d (%s/%s): %w", i, op.Bucket, op.Key, err)
			}
		}
	}

	for i, op := range ops {
		b := bucketsByOp[i]
		switch op.Kind {
		case store.OpPut:
			b.objects[op.Key] = store.Object{Bucket: op.Bucket, Key: op.Key, Value: cloneValue(op.Value), Etag: s.newEtag()}
		case store.OpDelete:
			delete(b.objects, op.Key)
		}
	}
	return nil
}

func (s *Store) FindObjects(ctx context.Context, bucketName string, filter store.Filter, opts store.FindOptions) ([]store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	var matches []store.Object
	for _, obj := range b.objects {
		if filter == nil || matchFilter(filter, obj.Value) {
			matches = append(matches, cloneObject(obj))
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if opts.Sort == "" {
			return matches[i].Key < matches[j].Key
		}
		return fmt.Sprint(matches[i].Value[opts.Sort]) < fmt.Sprint(matches[j].Value[opts.Sort])
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(matches) {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func matchFilter(f store.Filter, value map[string]any) bool {
	switch n := f.(type) {
	case store.Eq:
		got, ok := value[n.Field]
		return ok && got == n.Value
	case store.Present:
		_, ok := value[n.Field]
		return ok
	case store.Contains:
		items, ok := value[n.Field].([]any)
		if !ok {
			return false
		}
		for _, it := range items {
			if it == n.Value {
				return true
			}
		}
		return false
	case store.And:
		for _, sub := range n {
			if !matchFilter(sub, value) {
				return false
			}
		}
		return true
	case store.Or:
		for _, sub := range n {
			if matchFilter(sub, value) {
				return true
			}
		}
		return false
	case store.Not:
		return !matchFilter(n.Filter, value)
	default:
		return false
	}
}

// SQL implements the single statement shape the domain layer issues:
// "overlap" queries for subnet-collision detection. The statement name
// is matched case-insensitively against a small fixed vocabulary; args
// are positional (bucket name, CIDR, optional vnet_id).
func (s *Store) SQL(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToUpper(strings.TrimSpace(stmt)) {
	case "FIND_OVERLAPPING_SUBNETS":
		return s.findOverlappingSubnets(args)
	default:
		return nil, fmt.Errorf("memstore: unsupported statement %q", stmt)
	}
}

func (s *Store) findOverlappingSubnets(args []any) ([]map[string]any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("memstore: FIND_OVERLAPPING_SUBNETS requires (bucket, cidr[, vnetID])")
	}
	bucketName, _ := args[0].(string)
	cidr, _ := args[1].(string)
	_, candidate, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid cidr value: %w", err)
	}

	var vnetFilter *int
	if len(args) > 2 {
		if v, ok := args[2].(int); ok {
			vnetFilter = &v
		}
	}

	b, err := s.bucket(bucketName)
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for _, obj := range b.objects {
		subnetStr, _ := obj.Value["subnet"].(string)
		if subnetStr == "" {
			continue
		}
		_, existing, err := net.ParseCIDR(subnetStr)
		if err != nil {
			continue
		}
		if vnetFilter != nil {
			vnetVal, _ := obj.Value["vnet_id"].(int)
			if vnetVal != *vnetFilter {
				continue
			}
		}
		if subnetsOverlap(candidate, existing) {
			out = append(out, cloneValue(obj.Value))
		}
	}
	return out, nil
}

func subnetsOverlap(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}

func cloneValue(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func cloneObject(o store.Object) store.Object {
	o.Value = cloneValue(o.Value)
	return o
}
