// Package mongostore backs internal/store.Store with MongoDB, following
// the teacher client's functional-options construction shape (see
// pkg/clients/keaclient). Each logical bucket becomes a collection; each
// document carries an "_etag" field used for optimistic-concurrency
// writes, since Mongo has no native CAS-on-arbitrary-field primitive —
// every conditional write is a ReplaceOne/DeleteOne filtered on _etag.
package mongostore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/store"
)

const etagField = "_etag"

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	timeout  time.Duration
	indexedB map[string][]string // bucket -> unique index field names, from InitBucket
}

// Option configures a Store at construction time.
type Option interface{ apply(*config) }

type config struct {
	uri     string
	dbName  string
	timeout time.Duration
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithURI sets the Mongo connection URI.
func WithURI(uri string) Option {
	return optionFunc(func(c *config) { c.uri = uri })
}

// WithDatabase sets the database name operations are scoped to.
func WithDatabase(name string) Option {
	return optionFunc(func(c *config) { c.dbName = name })
}

// WithTimeout sets the per-operation context timeout applied when the
// caller's context carries no deadline of its own.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.timeout = d })
}

// Connect dials MongoDB and returns a ready Store. The returned Store's
// Close method should be called on shutdown.
func Connect(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := config{timeout: 10 * time.Second}
	for _, o := range opts {
		o.apply(&cfg)
	}
	if cfg.uri == "" {
		return nil, fmt.Errorf("mongostore: URI is required")
	}
	if cfg.dbName == "" {
		return nil, fmt.Errorf("mongostore: database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	logging.Info("connected to mongo store", "database", cfg.dbName)
	return &Store{
		client:   client,
		db:       client.Database(cfg.dbName),
		timeout:  cfg.timeout,
		indexedB: map[string][]string{},
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func newEtag() store.Etag {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return store.Etag(hex.EncodeToString(b))
}

func (s *Store) InitBucket(ctx context.Context, schema store.BucketSchema) error {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	coll := s.db.Collection(schema.Name)
	var unique []string
	for name, kind := range schema.Indexes {
		model := mongo.IndexModel{Keys: bson.D{{Key: name, Value: 1}}}
		if name == "name" || name == "mac" {
			model.Options = options.Index().SetUnique(true).SetSparse(true)
			unique = append(unique, name)
		}
		if kind == store.IndexSubnet {
			model.Options = options.Index()
		}
		if _, err := coll.Indexes().CreateOne(cctx, model); err != nil {
			return fmt.Errorf("mongostore: init index %s.%s: %w", schema.Name, name, err)
		}
	}
	s.indexedB[schema.Name] = unique
	return nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (store.Object, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	var doc bson.M
	err := s.db.Collection(bucket).FindOne(cctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return store.Object{}, store.ErrNotFound
	}
	if err != nil {
		return store.Object{}, fmt.Errorf("mongostore: get %s/%s: %w", bucket, key, err)
	}
	return docToObject(bucket, key, doc), nil
}

func (s *Store) PutObject(ctx context.Context, bucket, key string, value map[string]any, precond store.EtagPrecondition) (store.Etag, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	for _, field := range s.indexedB[bucket] {
		if want, ok := value[field]; ok {
			count, err := s.db.Collection(bucket).CountDocuments(cctx, bson.M{field: want, "_id": bson.M{"$ne": key}})
			if err != nil {
				return "", fmt.Errorf("mongostore: unique check %s.%s: %w", bucket, field, err)
			}
			if count > 0 {
				return "", store.ErrUniqueAttribute
			}
		}
	}

	doc := bson.M{"_id": key}
	for k, v := range value {
		doc[k] = v
	}
	newTag := newEtag()
	doc[etagField] = newTag

	if precond.IsNull() {
		if _, err := s.db.Collection(bucket).InsertOne(cctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return "", store.ErrEtagConflict
			}
			return "", fmt.Errorf("mongostore: insert %s/%s: %w", bucket, key, err)
		}
		return newTag, nil
	}

	filter := bson.M{"_id": key}
	if want, ok := precond.Value(); ok {
		filter[etagField] = want
	}
	result, err := s.db.Collection(bucket).ReplaceOne(cctx, filter, doc, options.Replace().SetUpsert(precond.IsAny()))
	if err != nil {
		return "", fmt.Errorf("mongostore: replace %s/%s: %w", bucket, key, err)
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return "", store.ErrEtagConflict
	}
	return newTag, nil
}

func (s *Store) DelObject(ctx context.Context, bucket, key string, precond store.EtagPrecondition) error {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	filter := bson.M{"_id": key}
	if want, ok := precond.Value(); ok {
		filter[etagField] = want
	}
	result, err := s.db.Collection(bucket).DeleteOne(cctx, filter)
	if err != nil {
		return fmt.Errorf("mongostore: delete %s/%s: %w", bucket, key, err)
	}
	if result.DeletedCount == 0 {
		if _, getErr := s.GetObject(ctx, bucket, key); getErr == store.ErrNotFound {
			return store.ErrNotFound
		}
		return store.ErrEtagConflict
	}
	return nil
}

// Batch applies ops inside a client session transaction so the whole set
// commits or none do. This requires a replica-set-backed Mongo deployment;
// a standalone mongod cannot run multi-document transactions.
func (s *Store) Batch(ctx context.Context, ops []store.Op) error {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(cctx)

	_, err = session.WithTransaction(cctx, func(sctx mongo.SessionContext) (any, error) {
		for _, op := range ops {
			switch op.Kind {
			case store.OpPut:
				if _, err := s.putInTxn(sctx, op); err != nil {
					return nil, err
				}
			case store.OpDelete:
				if err := s.delInTxn(sctx, op); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) putInTxn(sctx mongo.SessionContext, op store.Op) (store.Etag, error) {
	doc := bson.M{"_id": op.Key}
	for k, v := range op.Value {
		doc[k] = v
	}
	newTag := newEtag()
	doc[etagField] = newTag

	if op.Etag.IsNull() {
		if _, err := s.db.Collection(op.Bucket).InsertOne(sctx, doc); err != nil {
			return "", err
		}
		return newTag, nil
	}
	filter := bson.M{"_id": op.Key}
	if want, ok := op.Etag.Value(); ok {
		filter[etagField] = want
	}
	result, err := s.db.Collection(op.Bucket).ReplaceOne(sctx, filter, doc, options.Replace().SetUpsert(op.Etag.IsAny()))
	if err != nil {
		return "", err
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return "", store.ErrEtagConflict
	}
	return newTag, nil
}

func (s *Store) delInTxn(sctx mongo.SessionContext, op store.Op) error {
	filter := bson.M{"_id": op.Key}
	if want, ok := op.Etag.Value(); ok {
		filter[etagField] = want
	}
	result, err := s.db.Collection(op.Bucket).DeleteOne(sctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return store.ErrEtagConflict
	}
	return nil
}

func (s *Store) FindObjects(ctx context.Context, bucket string, filter store.Filter, opts store.FindOptions) ([]store.Object, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	mfilter := bson.M{}
	if filter != nil {
		mfilter = filterToMongo(filter)
	}

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}
	if opts.Sort != "" {
		findOpts.SetSort(bson.D{{Key: opts.Sort, Value: 1}})
	} else {
		findOpts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}

	cur, err := s.db.Collection(bucket).Find(cctx, mfilter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", bucket, err)
	}
	defer cur.Close(cctx)

	var out []store.Object
	for cur.Next(cctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decode %s: %w", bucket, err)
		}
		key, _ := doc["_id"].(string)
		out = append(out, docToObject(bucket, key, doc))
	}
	return out, cur.Err()
}

func filterToMongo(f store.Filter) bson.M {
	switch n := f.(type) {
	case store.Eq:
		return bson.M{n.Field: n.Value}
	case store.Present:
		return bson.M{n.Field: bson.M{"$exists": true}}
	case store.Contains:
		return bson.M{n.Field: n.Value}
	case store.And:
		var parts []bson.M
		for _, sub := range n {
			parts = append(parts, filterToMongo(sub))
		}
		return bson.M{"$and": parts}
	case store.Or:
		var parts []bson.M
		for _, sub := range n {
			parts = append(parts, filterToMongo(sub))
		}
		return bson.M{"$or": parts}
	case store.Not:
		return bson.M{"$nor": []bson.M{filterToMongo(n.Filter)}}
	default:
		return bson.M{}
	}
}

// SQL runs the fixed "FIND_OVERLAPPING_SUBNETS" query (stmt itself is
// not inspected): it scans the named bucket, narrowed server-side to the
// given vnet_id when one is passed, and keeps the documents whose
// "subnet" CIDR overlaps the candidate CIDR. Mongo has no native CIDR
// operator, so the overlap test runs client-side on decoded documents.
func (s *Store) SQL(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	cctx, cancel := s.ctx(ctx)
	defer cancel()

	if len(args) < 2 {
		return nil, fmt.Errorf("mongostore: FIND_OVERLAPPING_SUBNETS requires (bucket, cidr[, vnetID])")
	}
	bucket, _ := args[0].(string)
	cidr, _ := args[1].(string)
	_, candidate, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("mongostore: invalid cidr value: %w", err)
	}

	match := bson.M{}
	if len(args) > 2 {
		if vnetID, ok := args[2].(int); ok {
			match["vnet_id"] = vnetID
		}
	}

	cur, err := s.db.Collection(bucket).Find(cctx, match)
	if err != nil {
		return nil, fmt.Errorf("mongostore: overlap scan %s: %w", bucket, err)
	}
	defer cur.Close(cctx)

	var out []map[string]any
	for cur.Next(cctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		subnetStr, _ := doc["subnet"].(string)
		_, existing, perr := net.ParseCIDR(subnetStr)
		if perr != nil || !(candidate.Contains(existing.IP) || existing.Contains(candidate.IP)) {
			continue
		}
		out = append(out, map[string]any(doc))
	}
	return out, cur.Err()
}

func docToObject(bucket, key string, doc bson.M) store.Object {
	value := make(map[string]any, len(doc))
	var etag store.Etag
	for k, v := range doc {
		switch k {
		case "_id":
			continue
		case etagField:
			if s, ok := v.(string); ok {
				etag = store.Etag(s)
			}
			continue
		default:
			value[k] = v
		}
	}
	return store.Object{Bucket: bucket, Key: key, Value: value, Etag: etag}
}
