// Package nic implements the NIC model of spec.md §4.7: CRUD keyed by a
// 48-bit MAC address, binding/unbinding of an IP within a network,
// primary/underlay/fabric side effects, and overlay/underlay mapping
// and change-notification emission around the IP allocator.
package nic

import (
	"context"
	"errors"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/overlay"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/macaddr"
	"github.com/TritonDataCenter/napi-go/internal/store"
	"github.com/TritonDataCenter/napi-go/internal/validation"
)

const bucketName = "nics"

// NetworkInfo is the narrow view of a network the NIC model needs:
// enough to validate a bind, allocate an address and decide whether the
// resulting NIC is a fabric or underlay NIC.
type NetworkInfo struct {
	UUID             string
	Family           string
	NICTag           string
	Fabric           bool
	VNetID           int
	Subnet           string
	ProvisionStartIP string
	ProvisionEndIP   string
	OwnerUUIDs       []string
}

// NetworkLookup is the network model's contribution to NIC validation.
type NetworkLookup interface {
	GetUnfiltered(ctx context.Context, networkUUID string) (NetworkInfo, *nerrors.Error)
}

// NetworkLookupFunc adapts a plain function to NetworkLookup, letting
// callers wire internal/domain/network.Service in without either package
// importing the other.
type NetworkLookupFunc func(ctx context.Context, networkUUID string) (NetworkInfo, *nerrors.Error)

func (f NetworkLookupFunc) GetUnfiltered(ctx context.Context, networkUUID string) (NetworkInfo, *nerrors.Error) {
	return f(ctx, networkUUID)
}

// NIC is a network interface card as returned to callers.
type NIC struct {
	MAC                    string
	OwnerUUID              string
	BelongsToUUID          string
	BelongsToType          string
	State                  string
	Primary                bool
	Model                  string
	NICTag                 string
	NICTagsProvided        []string
	IP                     string
	NetworkUUID            string
	CNUUID                 string
	Underlay               bool
	AllowIPSpoofing        bool
	AllowMACSpoofing       bool
	AllowDHCPSpoofing      bool
	AllowRestrictedTraffic bool
	AllowUnfilteredPromisc bool
	CreatedTS              int64
	ModifiedTS             int64
}

// Bound reports whether n currently holds an address.
func (n NIC) Bound() bool { return n.IP != "" && n.NetworkUUID != "" }

// fabric reports whether n is a zone NIC bound to a fabric network with
// a compute node set.
func (n NIC) fabric(info NetworkInfo) bool {
	return n.Bound() && n.BelongsToType == "zone" && info.Fabric && n.CNUUID != ""
}

// Service implements the NIC model's public operations.
type Service struct {
	store       store.Store
	ipalloc     *ipalloc.Service
	networks    NetworkLookup
	overlay     overlay.Publisher
	publish     changefeed.Publisher
	underlayTag string
	oui         [3]byte
	now         func() int64
}

// New builds a Service. underlayTag names the NIC tag reserved for
// underlay NICs (spec.md §9's underlay-tag restriction); oui seeds
// generated MACs for the provisioning entry points.
func New(st store.Store, ip *ipalloc.Service, networks NetworkLookup, ovl overlay.Publisher, pub changefeed.Publisher, underlayTag string, oui [3]byte) *Service {
	return &Service{
		store: st, ipalloc: ip, networks: networks, overlay: ovl, publish: pub,
		underlayTag: underlayTag, oui: oui, now: unixNow,
	}
}

func unixNow() int64 { return time.Now().Unix() }

// Init creates the nics bucket.
func (s *Service) Init(ctx context.Context) error {
	return s.store.InitBucket(ctx, store.BucketSchema{
		Name:    bucketName,
		Version: 1,
		Indexes: map[string]store.IndexType{
			"mac":             store.IndexString,
			"belongs_to_uuid": store.IndexString,
			"network_uuid":    store.IndexString,
			"owner_uuid":      store.IndexString,
			"ip":              store.IndexIP,
		},
	})
}

func macField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	m, err := macaddr.Parse(s)
	if err != nil {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a valid MAC address")
	}
	return m, nil, nil
}

func stateField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	return validation.EnumField("provisioning", "running", "stopped")(ctx, name, raw)
}

func belongsToTypeField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	return validation.EnumField("zone", "server", "other")(ctx, name, raw)
}

func boolField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a boolean")
	}
	return b, nil, nil
}

func stringField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	return s, nil, nil
}

var createSchema = validation.Schema{
	Fields: []validation.FieldSpec{
		{Name: "mac", Validator: macField, Required: false},
		{Name: "owner_uuid", Validator: validation.UUIDField, Required: true},
		{Name: "belongs_to_uuid", Validator: validation.UUIDField, Required: true},
		{Name: "belongs_to_type", Validator: belongsToTypeField, Required: true},
		{Name: "ip", Validator: validation.IPField, Required: false},
		{Name: "network_uuid", Validator: validation.UUIDField, Required: false},
		{Name: "primary", Validator: boolField, Required: false},
		{Name: "state", Validator: stateField, Required: false},
		{Name: "nic_tag", Validator: validation.TagNameField, Required: false},
		{Name: "nic_tags_provided", Validator: validation.BoundedArrayField(0, 16, validation.TagNameField), Required: false},
		{Name: "cn_uuid", Validator: validation.UUIDField, Required: false},
		{Name: "underlay", Validator: boolField, Required: false},
		{Name: "model", Validator: stringField, Required: false},
		{Name: "allow_ip_spoofing", Validator: boolField, Required: false},
		{Name: "allow_mac_spoofing", Validator: boolField, Required: false},
		{Name: "allow_dhcp_spoofing", Validator: boolField, Required: false},
		{Name: "allow_restricted_traffic", Validator: boolField, Required: false},
		{Name: "allow_unfiltered_promisc", Validator: boolField, Required: false},
	},
}

// Create validates input, binds an IP when a network is named, applies
// primary/underlay/fabric side effects, and commits the NIC row.
func (s *Service) Create(ctx context.Context, input map[string]any, callerIsAdmin bool) (NIC, *nerrors.Error) {
	fields, verr := validation.Validate(ctx, createSchema, input)
	if verr != nil {
		return NIC{}, verr
	}

	mac, ok := fields["mac"].(macaddr.MAC)
	if !ok {
		gen, err := macaddr.Generate(s.oui)
		if err != nil {
			return NIC{}, nerrors.Internal(err)
		}
		mac = gen
	}
	key := mac.Key()

	ownerUUID := uuidStr(fields["owner_uuid"])
	belongsToUUID := uuidStr(fields["belongs_to_uuid"])
	belongsToType := fields["belongs_to_type"].(string)
	networkUUID := uuidStr(fields["network_uuid"])
	primary, _ := fields["primary"].(bool)
	underlay, _ := fields["underlay"].(bool)
	cnUUID := uuidStr(fields["cn_uuid"])
	nicTag, _ := fields["nic_tag"].(string)
	state, _ := fields["state"].(string)
	if state == "" {
		state = "provisioning"
	}

	var netInfo NetworkInfo
	var boundIP string
	if networkUUID != "" {
		info, nerr := s.networks.GetUnfiltered(ctx, networkUUID)
		if nerr != nil {
			return NIC{}, nerr
		}
		netInfo = info

		if underlay && netInfo.Fabric {
			return NIC{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "underlay", Code: nerrors.CodeInvalidParameter, Message: "underlay NICs cannot be provisioned on a fabric network",
			}})
		}

		rawIP, hasIP := fields["ip"]
		if hasIP {
			ip := ipString(rawIP)
			rec, cerr := s.ipalloc.ClaimSpecific(ctx, networkUUID, parseIP(ip), belongsToUUID, belongsToType, ownerUUID, callerIsAdmin)
			if cerr != nil {
				return NIC{}, cerr
			}
			boundIP = rec.Address.String()
		} else {
			rec, aerr := s.ipalloc.AllocateNextFree(ctx, networkUUID, parseIP(netInfo.ProvisionStartIP), parseIP(netInfo.ProvisionEndIP), belongsToUUID, belongsToType, ownerUUID)
			if aerr != nil {
				return NIC{}, aerr
			}
			boundIP = rec.Address.String()
		}
	}

	if underlay && belongsToType == "server" && nicTag != "" && nicTag != s.underlayTag {
		return NIC{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "underlay", Code: nerrors.CodeInvalidParameter, Message: "underlay NICs must use the configured underlay tag",
		}})
	}

	now := s.now()
	value := map[string]any{
		"mac":             key,
		"owner_uuid":      ownerUUID,
		"belongs_to_uuid": belongsToUUID,
		"belongs_to_type": belongsToType,
		"state":           state,
		"primary":         primary,
		"underlay":        underlay,
		"created_ts":      now,
		"modified_ts":     now,
	}
	if nicTag != "" {
		value["nic_tag"] = nicTag
	}
	if tags := stringsOf(fields["nic_tags_provided"]); len(tags) > 0 {
		value["nic_tags_provided"] = toAny(tags)
	}
	if model, ok := fields["model"].(string); ok {
		value["model"] = model
	}
	if cnUUID != "" {
		value["cn_uuid"] = cnUUID
	}
	if boundIP != "" {
		value["ip"] = boundIP
		value["network_uuid"] = networkUUID
	}
	for _, flag := range spoofFlags {
		if v, ok := fields[flag].(bool); ok {
			value[flag] = v
		}
	}

	var ops []store.Op
	if primary {
		demoteOps, derr := s.demotePrimaryOps(ctx, belongsToUUID, "")
		if derr != nil {
			return NIC{}, derr
		}
		ops = append(ops, demoteOps...)
	}
	ops = append(ops, store.Op{Kind: store.OpPut, Bucket: bucketName, Key: key, Value: value, Etag: store.Null()})

	if err := s.store.Batch(ctx, ops); err != nil {
		if boundIP != "" {
			_ = s.ipalloc.Release(ctx, networkUUID, parseIP(boundIP))
		}
		if errors.Is(err, store.ErrEtagConflict) {
			return NIC{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "mac", Code: nerrors.CodeDuplicateParameter, Message: "duplicate: mac",
			}})
		}
		return NIC{}, nerrors.Internal(err)
	}

	n := toNIC(value)
	if boundIP != "" {
		s.emitMappingEvents(ctx, n, netInfo, underlay)
	}

	logging.Info("nic created", "mac", n.MAC, "belongs_to_uuid", belongsToUUID)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "nic", Key: key, Kind: changefeed.ChangeCreate, Value: value})
	return n, nil
}

var spoofFlags = []string{
	"allow_ip_spoofing", "allow_mac_spoofing", "allow_dhcp_spoofing",
	"allow_restricted_traffic", "allow_unfiltered_promisc",
}

func (s *Service) emitMappingEvents(ctx context.Context, n NIC, netInfo NetworkInfo, underlay bool) {
	if underlay && n.BelongsToType == "server" {
		if err := s.overlay.PutUnderlayMapping(ctx, overlay.UnderlayMapping{
			CNUUID: n.BelongsToUUID, IP: n.IP, Port: overlay.VXLANPort,
		}); err != nil {
			logging.Warn("underlay mapping publish failed", "mac", n.MAC, "err", err)
		}
	}
	if n.fabric(netInfo) {
		if err := s.overlay.PutMapping(ctx, overlay.Mapping{
			CNUUID: n.CNUUID, IP: n.IP, MAC: n.MAC, VNetID: netInfo.VNetID, Deleted: false,
		}); err != nil {
			logging.Warn("overlay mapping publish failed", "mac", n.MAC, "err", err)
		}
	}
}

// Get fetches a NIC by MAC (accepted in colon, dash, or numeric form).
func (s *Service) Get(ctx context.Context, macStr string) (NIC, *nerrors.Error) {
	mac, err := macaddr.Parse(macStr)
	if err != nil {
		return NIC{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "mac", Code: nerrors.CodeInvalidParameter, Message: "must be a valid MAC address",
		}})
	}
	obj, gerr := s.store.GetObject(ctx, bucketName, mac.Key())
	if gerr != nil {
		if gerr == store.ErrNotFound {
			return NIC{}, nerrors.NotFound("nic", macStr)
		}
		return NIC{}, nerrors.Internal(gerr)
	}
	return toNIC(obj.Value), nil
}

// Exists reports whether macStr names a known NIC, implementing
// internal/domain/aggregation.NICLookup.
func (s *Service) Exists(ctx context.Context, macStr string) bool {
	_, err := s.Get(ctx, macStr)
	return err == nil
}

// ListFilters narrows List results.
type ListFilters struct {
	OwnerUUID     string
	BelongsToUUID string
	NetworkUUID   string
	BelongsToType string
}

// List returns NICs matching filters, sorted by mac.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]NIC, *nerrors.Error) {
	var conj store.And
	if filters.OwnerUUID != "" {
		conj = append(conj, store.Eq{Field: "owner_uuid", Value: filters.OwnerUUID})
	}
	if filters.BelongsToUUID != "" {
		conj = append(conj, store.Eq{Field: "belongs_to_uuid", Value: filters.BelongsToUUID})
	}
	if filters.NetworkUUID != "" {
		conj = append(conj, store.Eq{Field: "network_uuid", Value: filters.NetworkUUID})
	}
	if filters.BelongsToType != "" {
		conj = append(conj, store.Eq{Field: "belongs_to_type", Value: filters.BelongsToType})
	}
	var f store.Filter
	if len(conj) > 0 {
		f = conj
	}
	objs, err := s.store.FindObjects(ctx, bucketName, f, store.FindOptions{Sort: "mac"})
	if err != nil {
		return nil, nerrors.Internal(err)
	}
	out := make([]NIC, len(objs))
	for i, o := range objs {
		out[i] = toNIC(o.Value)
	}
	return out, nil
}

var updatableFields = map[string]bool{
	"owner_uuid": true, "belongs_to_uuid": true, "belongs_to_type": true,
	"state": true, "primary": true, "nic_tag": true, "nic_tags_provided": true,
	"cn_uuid": true, "underlay": true, "model": true, "ip": true, "network_uuid": true,
	"allow_ip_spoofing": true, "allow_mac_spoofing": true, "allow_dhcp_spoofing": true,
	"allow_restricted_traffic": true, "allow_unfiltered_promisc": true,
}

// Update applies a partial update, rebinding the IP (release old + claim
// new) when ip/network_uuid change and demoting other NICs when primary
// flips to true.
func (s *Service) Update(ctx context.Context, macStr string, input map[string]any, callerIsAdmin bool) (NIC, *nerrors.Error) {
	mac, perr := macaddr.Parse(macStr)
	if perr != nil {
		return NIC{}, nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "mac", Code: nerrors.CodeInvalidParameter, Message: "must be a valid MAC address",
		}})
	}
	key := mac.Key()

	obj, err := s.store.GetObject(ctx, bucketName, key)
	if err != nil {
		if err == store.ErrNotFound {
			return NIC{}, nerrors.NotFound("nic", macStr)
		}
		return NIC{}, nerrors.Internal(err)
	}
	existing := obj.Value

	var fieldErrs []nerrors.FieldError
	for name := range input {
		if !updatableFields[name] {
			fieldErrs = append(fieldErrs, nerrors.FieldError{Field: name, Code: nerrors.CodeInvalidParameter, Message: name + " is not updatable"})
		}
	}
	if len(fieldErrs) > 0 {
		sort.Slice(fieldErrs, func(i, j int) bool { return fieldErrs[i].Field < fieldErrs[j].Field })
		return NIC{}, nerrors.InvalidParameters(fieldErrs)
	}

	merged := map[string]any{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range input {
		merged[k] = v
	}
	merged["modified_ts"] = s.now()

	oldIP, _ := existing["ip"].(string)
	oldNetwork, _ := existing["network_uuid"].(string)
	newNetwork, networkChanged := input["network_uuid"].(string)
	newIPRaw, ipChanged := input["ip"]

	belongsToUUID, _ := merged["belongs_to_uuid"].(string)
	belongsToType, _ := merged["belongs_to_type"].(string)
	ownerUUID, _ := merged["owner_uuid"].(string)

	var newNetInfo NetworkInfo
	if networkChanged || ipChanged {
		targetNetwork := oldNetwork
		if networkChanged {
			targetNetwork = newNetwork
		}
		if oldNetwork != "" && oldIP != "" {
			if rerr := s.ipalloc.Release(ctx, oldNetwork, parseIP(oldIP)); rerr != nil {
				return NIC{}, rerr
			}
		}
		if targetNetwork != "" {
			info, nerr := s.networks.GetUnfiltered(ctx, targetNetwork)
			if nerr != nil {
				return NIC{}, nerr
			}
			newNetInfo = info
			var rec ipalloc.Record
			var aerr *nerrors.Error
			if ipChanged {
				rec, aerr = s.ipalloc.ClaimSpecific(ctx, targetNetwork, parseIP(ipString(newIPRaw)), belongsToUUID, belongsToType, ownerUUID, callerIsAdmin)
			} else {
				rec, aerr = s.ipalloc.AllocateNextFree(ctx, targetNetwork, parseIP(info.ProvisionStartIP), parseIP(info.ProvisionEndIP), belongsToUUID, belongsToType, ownerUUID)
			}
			if aerr != nil {
				return NIC{}, aerr
			}
			merged["ip"] = rec.Address.String()
			merged["network_uuid"] = targetNetwork
		} else {
			delete(merged, "ip")
			delete(merged, "network_uuid")
		}
	}

	var ops []store.Op
	if primary, ok := input["primary"].(bool); ok && primary {
		demoteOps, derr := s.demotePrimaryOps(ctx, belongsToUUID, key)
		if derr != nil {
			return NIC{}, derr
		}
		ops = append(ops, demoteOps...)
	}
	ops = append(ops, store.Op{Kind: store.OpPut, Bucket: bucketName, Key: key, Value: merged, Etag: store.Match(obj.Etag)})

	if err := s.store.Batch(ctx, ops); err != nil {
		if errors.Is(err, store.ErrEtagConflict) {
			return NIC{}, nerrors.EtagConflict(bucketName, key)
		}
		return NIC{}, nerrors.Internal(err)
	}

	if newCN, ok := input["cn_uuid"].(string); ok {
		oldCN, _ := existing["cn_uuid"].(string)
		if newCN != oldCN {
			vnet := newNetInfo.VNetID
			if !networkChanged {
				if info, nerr := s.networks.GetUnfiltered(ctx, oldNetwork); nerr == nil {
					vnet = info.VNetID
				}
			}
			if serr := s.publish.Shootdown(ctx, changefeed.ShootdownEvent{CNUUID: oldCN, VNetID: vnet}); serr != nil {
				logging.Warn("shootdown publish failed", "mac", key, "err", serr)
			}
		}
	}

	n := toNIC(merged)
	logging.Info("nic updated", "mac", key)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "nic", Key: key, Kind: changefeed.ChangeUpdate, Value: merged})
	return n, nil
}

// Delete releases the held IP (if any) and emits reverse mapping
// side-effects, then removes the NIC row.
func (s *Service) Delete(ctx context.Context, macStr string) *nerrors.Error {
	mac, perr := macaddr.Parse(macStr)
	if perr != nil {
		return nerrors.InvalidParameters([]nerrors.FieldError{{
			Field: "mac", Code: nerrors.CodeInvalidParameter, Message: "must be a valid MAC address",
		}})
	}
	key := mac.Key()

	obj, err := s.store.GetObject(ctx, bucketName, key)
	if err != nil {
		if err == store.ErrNotFound {
			return nerrors.NotFound("nic", macStr)
		}
		return nerrors.Internal(err)
	}
	n := toNIC(obj.Value)

	if n.Bound() {
		if rerr := s.ipalloc.Release(ctx, n.NetworkUUID, parseIP(n.IP)); rerr != nil {
			return rerr
		}
		if info, nerr := s.networks.GetUnfiltered(ctx, n.NetworkUUID); nerr == nil {
			if n.fabric(info) {
				_ = s.overlay.PutMapping(ctx, overlay.Mapping{CNUUID: n.CNUUID, IP: n.IP, MAC: n.MAC, VNetID: info.VNetID, Deleted: true})
				_ = s.publish.Shootdown(ctx, changefeed.ShootdownEvent{CNUUID: n.CNUUID, VNetID: info.VNetID})
			}
		}
	}
	if n.Underlay && n.BelongsToType == "server" {
		_ = s.overlay.DeleteUnderlayMapping(ctx, n.BelongsToUUID)
	}

	if err := s.store.DelObject(ctx, bucketName, key, store.Any()); err != nil {
		if err == store.ErrNotFound {
			return nerrors.NotFound("nic", macStr)
		}
		return nerrors.Internal(err)
	}

	logging.Info("nic deleted", "mac", key)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "nic", Key: key, Kind: changefeed.ChangeDelete})
	return nil
}

func (s *Service) demotePrimaryOps(ctx context.Context, belongsToUUID, exceptMAC string) ([]store.Op, *nerrors.Error) {
	objs, err := s.store.FindObjects(ctx, bucketName, store.Eq{Field: "belongs_to_uuid", Value: belongsToUUID}, store.FindOptions{Sort: "mac"})
	if err != nil && err != store.ErrBucketNotFound {
		return nil, nerrors.Internal(err)
	}
	var ops []store.Op
	for _, o := range objs {
		if o.Key == exceptMAC {
			continue
		}
		primary, _ := o.Value["primary"].(bool)
		if !primary {
			continue
		}
		v := map[string]any{}
		for k, val := range o.Value {
			v[k] = val
		}
		v["primary"] = false
		ops = append(ops, store.Op{Kind: store.OpPut, Bucket: bucketName, Key: o.Key, Value: v, Etag: store.Match(o.Etag)})
	}
	return ops, nil
}

func uuidStr(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case uuid.UUID:
		return val.String()
	default:
		return ""
	}
}

func ipString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case net.IP:
		return val.String()
	default:
		return ""
	}
}

func parseIP(s string) net.IP { return net.ParseIP(s) }

func stringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch val := it.(type) {
		case string:
			out = append(out, val)
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

func toNIC(v map[string]any) NIC {
	n := NIC{}
	n.MAC, _ = v["mac"].(string)
	n.OwnerUUID, _ = v["owner_uuid"].(string)
	n.BelongsToUUID, _ = v["belongs_to_uuid"].(string)
	n.BelongsToType, _ = v["belongs_to_type"].(string)
	n.State, _ = v["state"].(string)
	n.Primary, _ = v["primary"].(bool)
	n.Model, _ = v["model"].(string)
	n.NICTag, _ = v["nic_tag"].(string)
	n.NICTagsProvided = stringsOf(v["nic_tags_provided"])
	n.IP, _ = v["ip"].(string)
	n.NetworkUUID, _ = v["network_uuid"].(string)
	n.CNUUID, _ = v["cn_uuid"].(string)
	n.Underlay, _ = v["underlay"].(bool)
	n.AllowIPSpoofing, _ = v["allow_ip_spoofing"].(bool)
	n.AllowMACSpoofing, _ = v["allow_mac_spoofing"].(bool)
	n.AllowDHCPSpoofing, _ = v["allow_dhcp_spoofing"].(bool)
	n.AllowRestrictedTraffic, _ = v["allow_restricted_traffic"].(bool)
	n.AllowUnfilteredPromisc, _ = v["allow_unfiltered_promisc"].(bool)
	if ts, ok := v["created_ts"].(int64); ok {
		n.CreatedTS = ts
	}
	if ts, ok := v["modified_ts"].(int64); ok {
		n.ModifiedTS = ts
	}
	return n
}
