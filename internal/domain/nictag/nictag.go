// Package nictag implements the NIC-tag model of spec.md §4.3: CRUD for
// named MTU-carrying tags, with referential-integrity checks against the
// networks that reference them.
package nictag

import (
	"context"
	"errors"
	"sort"

	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/store"
	"github.com/TritonDataCenter/napi-go/internal/validation"
)

const bucketName = "nic_tags"

const (
	nameAdmin    = "admin"
	nameExternal = "external"
	defaultMTU   = 1500
)

// Tag is a NIC tag as returned to callers.
type Tag struct {
	Name string
	MTU  int
}

// Service implements the NIC-tag model's public operations.
type Service struct {
	store   store.Store
	publish changefeed.Publisher
}

// New builds a Service backed by st, publishing change events via pub.
func New(st store.Store, pub changefeed.Publisher) *Service {
	return &Service{store: st, publish: pub}
}

// Init creates the nic_tags bucket and seeds the reserved "admin" tag if
// it does not already exist.
func (s *Service) Init(ctx context.Context) error {
	if err := s.store.InitBucket(ctx, store.BucketSchema{
		Name:    bucketName,
		Version: 1,
		Indexes: map[string]store.IndexType{"name": store.IndexString},
	}); err != nil {
		return nerrors.Internal(err)
	}
	_, err := s.Get(ctx, nameAdmin)
	if err == nil {
		return nil
	}
	if !nerrors.Is(err, nerrors.KindNotFound) {
		return err
	}
	_, createErr := s.Create(ctx, nameAdmin, defaultMTU)
	return createErr
}

var createSchema = validation.Schema{
	Strict: true,
	Fields: []validation.FieldSpec{
		{Name: "name", Validator: validation.TagNameField, Required: true},
		{Name: "mtu", Validator: validation.MTUField, Required: false},
	},
}

// Create creates a new NIC tag. If name is "admin", mtu must be the
// default (1500) or zero (meaning "use default").
func (s *Service) Create(ctx context.Context, name string, mtu int) (Tag, *nerrors.Error) {
	input := map[string]any{"name": name}
	if mtu != 0 {
		input["mtu"] = mtu
	}
	fields, verr := validation.Validate(ctx, createSchema, input)
	if verr != nil {
		return Tag{}, verr
	}
	parsedName := fields["name"].(string)
	parsedMTU := defaultMTU
	if v, ok := fields["mtu"]; ok {
		parsedMTU = v.(int)
	}
	if parsedName == nameAdmin && parsedMTU != defaultMTU {
		return Tag{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "mtu", Code: nerrors.CodeInvalidParameter, Message: "admin tag MTU must be the default",
		}})
	}

	value := map[string]any{"name": parsedName, "mtu": parsedMTU}
	if _, err := s.store.PutObject(ctx, bucketName, parsedName, value, store.Null()); err != nil {
		return Tag{}, mapStoreError(err, "name")
	}
	logging.Info("nic tag created", "name", parsedName, "mtu", parsedMTU)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "nic_tag", Key: parsedName, Kind: changefeed.ChangeCreate, Value: value})
	return Tag{Name: parsedName, MTU: parsedMTU}, nil
}

// Get fetches a tag by name.
func (s *Service) Get(ctx context.Context, name string) (Tag, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, name)
	if err != nil {
		return Tag{}, mapStoreError(err, "name")
	}
	return toTag(obj.Value), nil
}

// List returns every NIC tag, sorted by name.
func (s *Service) List(ctx context.Context) ([]Tag, *nerrors.Error) {
	objs, err := s.store.FindObjects(ctx, bucketName, nil, store.FindOptions{Sort: "name"})
	if err != nil {
		return nil, nerrors.Internal(err)
	}
	out := make([]Tag, len(objs))
	for i, o := range objs {
		out[i] = toTag(o.Value)
	}
	return out, nil
}

// MTU returns the current MTU of the named tag, implementing
// internal/domain/network.TagLookup.
func (s *Service) MTU(ctx context.Context, name string) (int, *nerrors.Error) {
	tag, err := s.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	return tag.MTU, nil
}

// Update renames and/or resizes the MTU of an existing tag. At least one
// of newName/newMTU must be provided (newMTU==0 and newName=="" both
// absent means "nothing to do", rejected as invalid).
func (s *Service) Update(ctx context.Context, oldName string, newName string, newMTU int) (Tag, *nerrors.Error) {
	if newName == "" && newMTU == 0 {
		return Tag{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeMissingParameter, Message: "at least one of name or mtu is required",
		}})
	}
	if oldName == nameAdmin {
		return Tag{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeInvalidParameter, Message: "the admin tag cannot be updated",
		}})
	}
	if oldName == nameExternal && newName != "" && newName != nameExternal {
		return Tag{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeInvalidParameter, Message: "the external tag cannot be renamed",
		}})
	}

	existing, err := s.Get(ctx, oldName)
	if err != nil {
		return Tag{}, err
	}

	finalName := existing.Name
	if newName != "" {
		finalName = newName
	}
	finalMTU := existing.MTU
	if newMTU != 0 {
		finalMTU = newMTU
	}

	refs, rerr := s.referencingNetworks(ctx, oldName)
	if rerr != nil {
		return Tag{}, rerr
	}
	if newName != "" && newName != oldName {
		if len(refs) > 0 {
			return Tag{}, nerrors.InUse("nic tag is referenced by one or more networks", uuidsOf(refs)...)
		}
		if _, getErr := s.Get(ctx, newName); getErr == nil {
			return Tag{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "name", Code: nerrors.CodeDuplicateParameter, Message: "a tag with this name already exists",
			}})
		}
	}
	if newMTU != 0 && newMTU < existing.MTU {
		for _, ref := range refs {
			if refMTU, _ := ref["mtu"].(int); refMTU > finalMTU {
				return Tag{}, nerrors.InvalidParameters([]nerrors.FieldError{{
					Field: "mtu", Code: nerrors.CodeInvalidParameter, Message: "cannot lower mtu below a referencing network's mtu",
				}})
			}
		}
	}

	value := map[string]any{"name": finalName, "mtu": finalMTU}
	if finalName != oldName {
		ops := []store.Op{
			{Kind: store.OpDelete, Bucket: bucketName, Key: oldName},
			{Kind: store.OpPut, Bucket: bucketName, Key: finalName, Value: value, Etag: store.Null(), Indexed: []string{"name"}},
		}
		if err := s.store.Batch(ctx, ops); err != nil {
			return Tag{}, mapStoreError(err, "name")
		}
	} else {
		if _, err := s.store.PutObject(ctx, bucketName, finalName, value, store.Any()); err != nil {
			return Tag{}, mapStoreError(err, "name")
		}
	}

	logging.Info("nic tag updated", "oldName", oldName, "newName", finalName, "mtu", finalMTU)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "nic_tag", Key: finalName, Kind: changefeed.ChangeUpdate, Value: value})
	return Tag{Name: finalName, MTU: finalMTU}, nil
}

// Delete removes a tag, failing if any network still references it.
func (s *Service) Delete(ctx context.Context, name string) *nerrors.Error {
	if name == nameAdmin {
		return nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "name", Code: nerrors.CodeInvalidParameter, Message: "the admin tag cannot be deleted",
		}})
	}
	refs, err := s.referencingNetworks(ctx, name)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return nerrors.InUse("nic tag is referenced by one or more networks", uuidsOf(refs)...)
	}
	if delErr := s.store.DelObject(ctx, bucketName, name, store.Any()); delErr != nil {
		return mapStoreError(delErr, "name")
	}
	logging.Info("nic tag deleted", "name", name)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "nic_tag", Key: name, Kind: changefeed.ChangeDelete})
	return nil
}

func (s *Service) referencingNetworks(ctx context.Context, tagName string) ([]map[string]any, *nerrors.Error) {
	objs, err := s.store.FindObjects(ctx, "networks", store.Eq{Field: "nic_tag", Value: tagName}, store.FindOptions{Sort: "uuid"})
	if err != nil {
		if err == store.ErrBucketNotFound {
			return nil, nil
		}
		return nil, nerrors.Internal(err)
	}
	out := make([]map[string]any, len(objs))
	for i, o := range objs {
		out[i] = o.Value
	}
	return out, nil
}

func uuidsOf(networks []map[string]any) []string {
	out := make([]string, 0, len(networks))
	for _, n := range networks {
		if u, ok := n["uuid"].(string); ok {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func toTag(v map[string]any) Tag {
	t := Tag{}
	if n, ok := v["name"].(string); ok {
		t.Name = n
	}
	if m, ok := v["mtu"].(int); ok {
		t.MTU = m
	}
	return t
}

func mapStoreError(err error, field string) *nerrors.Error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nerrors.NotFound("nic_tag", field)
	case errors.Is(err, store.ErrUniqueAttribute):
		return nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: field, Code: nerrors.CodeDuplicateParameter, Message: "duplicate: " + field,
		}})
	case errors.Is(err, store.ErrEtagConflict):
		return nerrors.EtagConflict(bucketName, field)
	default:
		return nerrors.Internal(err)
	}
}
