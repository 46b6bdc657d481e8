// Package network implements the network model of spec.md §4.4: subnet
// and provision-range validation, overlap detection, immutable-field
// enforcement across updates, and the per-network IP sub-bucket
// lifecycle (reserved gateway/resolver/broadcast addresses and
// boundary placeholders).
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/TritonDataCenter/napi-go/internal/cidrutil"
	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/networkpool"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/ownerctx"
	"github.com/TritonDataCenter/napi-go/internal/store"
	"github.com/TritonDataCenter/napi-go/internal/validation"
)

const bucketName = "networks"

// bucketVersion gates the dual-write of legacy address representations
// (spec.md §9); a version <= legacyAddressVersion writes both the
// canonical and legacy field names for IPv4 records.
const bucketVersion = 2
const legacyAddressVersion = 4

// TagLookup is the narrow view of the NIC-tag model the network model
// needs: its current MTU, to enforce "network mtu <= tag mtu".
type TagLookup interface {
	MTU(ctx context.Context, name string) (int, *nerrors.Error)
}

// Network is a logical network as returned to callers.
type Network struct {
	UUID               string
	Name               string
	Description        string
	NICTag             string
	VLANID             int
	VNetID             int
	MTU                int
	Family             string
	Subnet             string
	ProvisionStartIP   string
	ProvisionEndIP     string
	Gateway            string
	Resolvers          []string
	Routes             map[string]string
	OwnerUUIDs         []string
	Fabric             bool
	InternetNAT        bool
	GatewayProvisioned bool
}

// Service implements the network model's public operations.
type Service struct {
	store    store.Store
	ipalloc  *ipalloc.Service
	tags     TagLookup
	publish  changefeed.Publisher
	ulaAllow bool
}

// New builds a Service.
func New(st store.Store, ip *ipalloc.Service, tags TagLookup, pub changefeed.Publisher, ulaFabricsEnabled bool) *Service {
	return &Service{store: st, ipalloc: ip, tags: tags, publish: pub, ulaAllow: ulaFabricsEnabled}
}

// Init creates the networks bucket.
func (s *Service) Init(ctx context.Context) error {
	return s.store.InitBucket(ctx, store.BucketSchema{
		Name:    bucketName,
		Version: bucketVersion,
		Indexes: map[string]store.IndexType{
			"name_str": store.IndexString,
			"nic_tag":  store.IndexString,
			"vlan_id":  store.IndexNumber,
			"family":   store.IndexString,
			"fabric":   store.IndexString,
		},
	})
}

var familyField = validation.EnumField("ipv4", "ipv6")

var createSchema = validation.Schema{
	Fields: []validation.FieldSpec{
		{Name: "name", Validator: nameField, Required: true},
		{Name: "nic_tag", Validator: validation.TagNameField, Required: true},
		{Name: "vlan_id", Validator: validation.VLANField, Required: true},
		{Name: "vnet_id", Validator: validation.VNetField, Required: false},
		{Name: "mtu", Validator: validation.MTUField, Required: false},
		{Name: "family", Validator: familyField, Required: true},
		{Name: "subnet", Validator: validation.CIDRField, Required: true},
		{Name: "provision_start_ip", Validator: validation.IPField, Required: true},
		{Name: "provision_end_ip", Validator: validation.IPField, Required: true},
		{Name: "gateway", Validator: validation.IPField, Required: false},
		{Name: "resolvers", Validator: validation.BoundedArrayField(0, 6, validation.IPField), Required: false},
		{Name: "owner_uuids", Validator: validation.BoundedArrayField(0, 32, validation.UUIDField), Required: false},
		{Name: "description", Validator: stringField, Required: false},
		{Name: "fabric", Validator: boolField, Required: false},
		{Name: "internet_nat", Validator: boolField, Required: false},
		{Name: "routes", Validator: routesField, Required: false},
	},
	After: []validation.AfterHook{
		{Name: "fabric-owner", DependsOn: []string{"fabric", "owner_uuids"}, Run: hookFabricOwner},
		{Name: "family-coherence", DependsOn: []string{"family", "subnet", "gateway", "resolvers", "routes"}, Run: hookFamilyCoherence},
		{Name: "provision-range", DependsOn: []string{"subnet", "provision_start_ip", "provision_end_ip"}, Run: hookProvisionRange},
	},
}

// updateSchema re-validates the mutable fields spec.md §4.4's Update
// supports (gateway, resolvers, routes, provision_{start,end}_ip, mtu,
// name, owner_uuids, description) with the same per-field validators as
// createSchema. family/subnet/provision_start_ip/provision_end_ip are
// always required here too: Update seeds them from the existing record
// when the caller's request omits them, so family-coherence and
// provision-range re-run on every update exactly as they do on Create.
var updateSchema = validation.Schema{
	Fields: []validation.FieldSpec{
		{Name: "name", Validator: nameField, Required: false},
		{Name: "family", Validator: familyField, Required: true},
		{Name: "subnet", Validator: validation.CIDRField, Required: true},
		{Name: "mtu", Validator: validation.MTUField, Required: false},
		{Name: "provision_start_ip", Validator: validation.IPField, Required: true},
		{Name: "provision_end_ip", Validator: validation.IPField, Required: true},
		{Name: "gateway", Validator: validation.IPField, Required: false},
		{Name: "resolvers", Validator: validation.BoundedArrayField(0, 6, validation.IPField), Required: false},
		{Name: "owner_uuids", Validator: validation.BoundedArrayField(0, 32, validation.UUIDField), Required: false},
		{Name: "description", Validator: stringField, Required: false},
		{Name: "routes", Validator: routesField, Required: false},
	},
	After: []validation.AfterHook{
		{Name: "family-coherence", DependsOn: []string{"family", "subnet", "gateway", "resolvers", "routes"}, Run: hookFamilyCoherence},
		{Name: "provision-range", DependsOn: []string{"subnet", "provision_start_ip", "provision_end_ip"}, Run: hookProvisionRange},
	},
}

func nameField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok || s == "" || len(s) > 255 {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a non-empty string")
	}
	return s, nil, nil
}

func stringField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	s, ok := raw.(string)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a string")
	}
	return s, nil, nil
}

func boolField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be a boolean")
	}
	return b, nil, nil
}

func hookFabricOwner(ctx context.Context, f validation.Fields) field.ErrorList {
	fabric, _ := f["fabric"].(bool)
	owners, _ := f["owner_uuids"].([]any)
	if fabric && len(owners) == 0 {
		return field.ErrorList{field.Required(field.NewPath("owner_uuids"), "fabrics require at least one owner")}
	}
	if fabric && len(owners) != 1 {
		return field.ErrorList{field.Invalid(field.NewPath("owner_uuids"), owners, "fabrics require exactly one owner")}
	}
	return nil
}

func hookFamilyCoherence(ctx context.Context, f validation.Fields) field.ErrorList {
	family, _ := f["family"].(string)
	subnet, _ := f["subnet"].(*net.IPNet)
	var errs field.ErrorList
	subnetFamily := string(cidrutil.FamilyOf(subnet.IP))
	if subnetFamily != family {
		errs = append(errs, field.Invalid(field.NewPath("subnet"), subnet.String(), "family does not match subnet"))
	}
	if gw, ok := f["gateway"].(net.IP); ok {
		if string(cidrutil.FamilyOf(gw)) != family {
			errs = append(errs, field.Invalid(field.NewPath("gateway"), gw.String(), "family mismatch"))
		}
	}
	if resolvers, ok := f["resolvers"].([]any); ok {
		for i, r := range resolvers {
			ip, _ := r.(net.IP)
			if string(cidrutil.FamilyOf(ip)) != family {
				errs = append(errs, field.Invalid(field.NewPath("resolvers").Index(i), ip.String(), "family mismatch"))
			}
		}
	}
	if routes, ok := f["routes"].(map[string]routeEntry); ok {
		for dest, entry := range routes {
			path := field.NewPath("routes").Key(dest)
			if string(cidrutil.FamilyOf(entry.destination.IP)) != family {
				errs = append(errs, field.Invalid(path, dest, "destination family mismatch"))
			}
			if !entry.linkLocal && string(cidrutil.FamilyOf(entry.gateway)) != family {
				errs = append(errs, field.Invalid(path, entry.gateway.String(), "gateway family mismatch"))
			}
		}
	}
	return errs
}

// routeEntry is a parsed route next-hop: either a concrete gateway IP or
// the "linklocal" sentinel (spec.md §3's
// routes{destination -> gateway | "linklocal"}).
type routeEntry struct {
	destination *net.IPNet
	gateway     net.IP
	linkLocal   bool
}

// routesField parses raw as a destination-CIDR-to-gateway map; each
// gateway is either an IP address or the literal string "linklocal".
func routesField(ctx context.Context, name string, raw any) (any, map[string]any, *field.Error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, field.Invalid(field.NewPath(name), raw, "must be an object")
	}
	out := make(map[string]routeEntry, len(m))
	for dest, gwRaw := range m {
		path := field.NewPath(name).Key(dest)
		_, destNet, perr := net.ParseCIDR(dest)
		if perr != nil {
			return nil, nil, field.Invalid(path, dest, "destination must be a CIDR")
		}
		gwStr, ok := gwRaw.(string)
		if !ok {
			return nil, nil, field.Invalid(path, gwRaw, "gateway must be a string")
		}
		entry := routeEntry{destination: destNet}
		if gwStr == "linklocal" {
			entry.linkLocal = true
		} else {
			gw := net.ParseIP(gwStr)
			if gw == nil {
				return nil, nil, field.Invalid(path, gwStr, `gateway must be an ip address or "linklocal"`)
			}
			entry.gateway = gw
		}
		out[dest] = entry
	}
	return out, nil, nil
}

// routesToStrings renders parsed routes back to their wire form for
// storage: destination CIDR string to gateway IP string or "linklocal".
func routesToStrings(routes map[string]routeEntry) map[string]string {
	out := make(map[string]string, len(routes))
	for dest, entry := range routes {
		if entry.linkLocal {
			out[dest] = "linklocal"
		} else {
			out[dest] = entry.gateway.String()
		}
	}
	return out
}

func hookProvisionRange(ctx context.Context, f validation.Fields) field.ErrorList {
	subnet, _ := f["subnet"].(*net.IPNet)
	start, _ := f["provision_start_ip"].(net.IP)
	end, _ := f["provision_end_ip"].(net.IP)
	var errs field.ErrorList
	if !cidrutil.Contains(subnet, start) {
		errs = append(errs, field.Invalid(field.NewPath("provision_start_ip"), start.String(), "must lie within subnet"))
	}
	if !cidrutil.Contains(subnet, end) {
		errs = append(errs, field.Invalid(field.NewPath("provision_end_ip"), end.String(), "must lie within subnet"))
	}
	if !cidrutil.Less(start, end) {
		errs = append(errs, field.Invalid(field.NewPath("provision_end_ip"), end.String(), "must be after provision_start_ip"))
	}
	if cidrutil.FamilyOf(subnet.IP) == cidrutil.IPv4 {
		broadcast := cidrutil.Broadcast(subnet)
		if start.Equal(broadcast) || end.Equal(broadcast) {
			errs = append(errs, field.Invalid(field.NewPath("provision_end_ip"), end.String(), "must not be the broadcast address"))
		}
	}
	return errs
}

// Create validates and commits a new network, then initializes its IP
// sub-bucket with reserved addresses and boundary placeholders.
func (s *Service) Create(ctx context.Context, input map[string]any) (Network, *nerrors.Error) {
	fields, verr := validation.Validate(ctx, createSchema, input)
	if verr != nil {
		return Network{}, verr
	}

	fabric, _ := fields["fabric"].(bool)
	family, _ := fields["family"].(string)
	subnet := fields["subnet"].(*net.IPNet)
	nicTag := fields["nic_tag"].(string)
	vlanID := fields["vlan_id"].(int)
	vnetID, _ := fields["vnet_id"].(int)
	ownerUUIDs := stringsOf(fields["owner_uuids"])

	tagMTU, terr := s.tags.MTU(ctx, nicTag)
	if terr != nil {
		return Network{}, terr
	}
	mtu := tagMTU
	if v, ok := fields["mtu"].(int); ok {
		if v > tagMTU {
			return Network{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "mtu", Code: nerrors.CodeInvalidParameter, Message: "must not exceed the nic tag's mtu",
			}})
		}
		mtu = v
	}

	if fabric {
		if family == string(cidrutil.IPv4) && !cidrutil.IsRFC1918(subnet) {
			return Network{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "subnet", Code: nerrors.CodeInvalidParameter, Message: "fabric subnets must be RFC1918",
			}})
		}
		if family == string(cidrutil.IPv6) {
			if !s.ulaAllow || !cidrutil.IsULA(subnet) {
				return Network{}, nerrors.InvalidParameters([]nerrors.FieldError{{
					Field: "subnet", Code: nerrors.CodeInvalidParameter, Message: "fabric ipv6 subnets must be ULA",
				}})
			}
		}
	}

	if overlapErr := s.checkOverlap(ctx, subnet, fabric, vnetID, ""); overlapErr != nil {
		return Network{}, overlapErr
	}

	id := uuid.New().String()
	nameStr := namespaceOf(fabric, ownerUUIDs) + ":" + fields["name"].(string)

	gateway, _ := fields["gateway"].(net.IP)
	resolvers := ipStringsOf(fields["resolvers"])
	start := fields["provision_start_ip"].(net.IP)
	end := fields["provision_end_ip"].(net.IP)
	routes, _ := fields["routes"].(map[string]routeEntry)

	value := map[string]any{
		"uuid":               id,
		"name":               fields["name"].(string),
		"name_str":           nameStr,
		"description":        fields["description"],
		"nic_tag":            nicTag,
		"vlan_id":            vlanID,
		"vnet_id":            vnetID,
		"mtu":                mtu,
		"routes":             routesToStrings(routes),
		"family":             family,
		"subnet":             subnet.String(),
		"provision_start_ip": start.String(),
		"provision_end_ip":   end.String(),
		"resolvers":          toAny(resolvers),
		"owner_uuids":        toAny(ownerUUIDs),
		"fabric":             fabric,
		"internet_nat":       fields["internet_nat"],
	}
	if gateway != nil {
		value["gateway"] = gateway.String()
	}
	writeLegacyAddressFields(value, family, subnet, start, end, gateway)

	if _, err := s.store.PutObject(ctx, bucketName, id, value, store.Null()); err != nil {
		if err == store.ErrUniqueAttribute {
			return Network{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "name", Code: nerrors.CodeDuplicateParameter, Message: "duplicate: name",
			}})
		}
		return Network{}, nerrors.Internal(err)
	}

	if err := s.ipalloc.InitBucket(ctx, id); err != nil {
		return Network{}, nerrors.Internal(err)
	}
	if err := s.seedReservedAddresses(ctx, id, subnet, family, gateway, resolvers, start, end, ownerSeed(ownerUUIDs)); err != nil {
		return Network{}, err
	}

	logging.Info("network created", "uuid", id, "name", nameStr, "subnet", subnet.String())
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "network", Key: id, Kind: changefeed.ChangeCreate, Value: value})
	return toNetwork(value), nil
}

func ownerSeed(owners []string) string {
	if len(owners) == 0 {
		return ""
	}
	return owners[0]
}

func (s *Service) seedReservedAddresses(ctx context.Context, networkUUID string, subnet *net.IPNet, family string, gateway net.IP, resolvers []string, start, end net.IP, ownerUUID string) *nerrors.Error {
	var ops []store.Op
	seen := map[string]bool{}
	reserve := func(ip net.IP) {
		key := ip.String()
		if seen[key] {
			return
		}
		seen[key] = true
		ops = append(ops, ipalloc.ReservedOp(networkUUID, ip, ownerUUID))
	}

	if gateway != nil {
		reserve(gateway)
	}
	for _, r := range resolvers {
		ip := net.ParseIP(r)
		if cidrutil.Contains(subnet, ip) {
			reserve(ip)
		}
	}
	if family == string(cidrutil.IPv4) {
		reserve(cidrutil.Broadcast(subnet))
	}

	ops = append(ops, ipalloc.PlaceholderOp(networkUUID, cidrutil.Dec(start)))
	ops = append(ops, ipalloc.PlaceholderOp(networkUUID, cidrutil.Inc(end)))

	if err := s.store.Batch(ctx, ops); err != nil {
		return nerrors.Internal(err)
	}
	return nil
}

// checkOverlap enforces spec.md's overlap rules: classical non-RFC1918
// networks may never overlap each other; RFC1918/ULA classical networks
// may freely overlap; fabric networks may overlap only across different
// vnet_ids. excludeUUID is skipped (used by Update).
func (s *Service) checkOverlap(ctx context.Context, subnet *net.IPNet, fabric bool, vnetID int, excludeUUID string) *nerrors.Error {
	if !fabric {
		isPrivate := cidrutil.IsRFC1918(subnet) || cidrutil.IsULA(subnet)
		if isPrivate {
			return nil
		}
	}

	var rows []map[string]any
	var err error
	if fabric {
		rows, err = s.store.SQL(ctx, "FIND_OVERLAPPING_SUBNETS", bucketName, subnet.String(), vnetID)
	} else {
		rows, err = s.store.SQL(ctx, "FIND_OVERLAPPING_SUBNETS", bucketName, subnet.String())
	}
	if err != nil {
		return nerrors.Internal(err)
	}

	var offending []string
	for _, row := range rows {
		rowUUID, _ := row["uuid"].(string)
		if rowUUID == "" || rowUUID == excludeUUID {
			continue
		}
		rowFabric, _ := row["fabric"].(bool)
		if rowFabric != fabric {
			continue
		}
		if !fabric {
			rowSubnet, _ := row["subnet"].(string)
			if _, rn, perr := net.ParseCIDR(rowSubnet); perr == nil {
				if cidrutil.IsRFC1918(rn) || cidrutil.IsULA(rn) {
					continue
				}
			}
		}
		offending = append(offending, rowUUID)
	}
	if len(offending) > 0 {
		sort.Strings(offending)
		return nerrors.NetworkOverlap(subnet.String(), offending...)
	}
	return nil
}

// GetUnfiltered fetches a network by uuid with no owner-visibility check,
// for internal cross-resource lookups (pool membership validation, NIC
// network checks) that already authorize at a higher layer.
func (s *Service) GetUnfiltered(ctx context.Context, networkUUID string) (Network, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, networkUUID)
	if err != nil {
		if err == store.ErrNotFound {
			return Network{}, nerrors.NotFound("network", networkUUID)
		}
		return Network{}, nerrors.Internal(err)
	}
	return toNetwork(obj.Value), nil
}

// Get fetches a network by uuid, or by the literal "admin" shortcut,
// applying the owner/provisionable-by filter.
func (s *Service) Get(ctx context.Context, uuidOrAdmin string, ownerUUID, provisionableBy string) (Network, *nerrors.Error) {
	var value map[string]any
	if uuidOrAdmin == "admin" {
		rows, err := s.store.FindObjects(ctx, bucketName, store.Eq{Field: "name_str", Value: "global:admin"}, store.FindOptions{Sort: "uuid"})
		if err != nil {
			return Network{}, nerrors.Internal(err)
		}
		if len(rows) == 0 {
			return Network{}, nerrors.NotFound("network", "admin")
		}
		if len(rows) > 1 {
			logging.Warn("multiple networks named global:admin", "count", len(rows))
		}
		value = rows[0].Value
	} else {
		obj, err := s.store.GetObject(ctx, bucketName, uuidOrAdmin)
		if err != nil {
			if err == store.ErrNotFound {
				return Network{}, nerrors.NotFound("network", uuidOrAdmin)
			}
			return Network{}, nerrors.Internal(err)
		}
		value = obj.Value
	}

	owners := stringsOf(value["owner_uuids"])
	caller := ownerUUID
	if caller == "" {
		caller = provisionableBy
	}
	if caller != "" && !ownerctx.Permits(ctx, owners, caller) {
		return Network{}, nerrors.NotFound("network", uuidOrAdmin)
	}
	return toNetwork(value), nil
}

// ListFilters narrows List results; zero values are "unset".
type ListFilters struct {
	Name            string
	NICTag          string
	VLANID          *int
	Family          string
	OwnerUUID       string
	ProvisionableBy string
	Fabric          *bool
}

// List returns networks matching filters, sorted by uuid.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Network, *nerrors.Error) {
	var conj store.And
	if filters.NICTag != "" {
		conj = append(conj, store.Eq{Field: "nic_tag", Value: filters.NICTag})
	}
	if filters.VLANID != nil {
		conj = append(conj, store.Eq{Field: "vlan_id", Value: *filters.VLANID})
	}
	if filters.Family != "" {
		conj = append(conj, store.Eq{Field: "family", Value: filters.Family})
	}
	if filters.Fabric != nil {
		conj = append(conj, store.Eq{Field: "fabric", Value: *filters.Fabric})
	}

	var f store.Filter
	if len(conj) > 0 {
		f = conj
	}
	objs, err := s.store.FindObjects(ctx, bucketName, f, store.FindOptions{Sort: "uuid"})
	if err != nil {
		return nil, nerrors.Internal(err)
	}

	caller := filters.OwnerUUID
	if caller == "" {
		caller = filters.ProvisionableBy
	}
	var out []Network
	for _, o := range objs {
		if filters.Name != "" {
			if name, _ := o.Value["name"].(string); name != filters.Name {
				continue
			}
		}
		owners := stringsOf(o.Value["owner_uuids"])
		if caller != "" && !ownerctx.Permits(ctx, owners, caller) {
			continue
		}
		out = append(out, toNetwork(o.Value))
	}
	return out, nil
}

var immutableFields = map[string]bool{
	"fabric": true, "family": true, "nic_tag": true, "vlan_id": true,
	"vnet_id": true, "subnet": true,
}
var fabricImmutableFields = map[string]bool{
	"gateway": true, "owner_uuids": true, "internet_nat": true,
}

// Update applies a partial update to an existing network, rejecting
// immutable-field changes, re-validating every mutated field through
// updateSchema, and re-placing provision-range placeholders when an
// endpoint moves.
func (s *Service) Update(ctx context.Context, networkUUID string, input map[string]any) (Network, *nerrors.Error) {
	obj, err := s.store.GetObject(ctx, bucketName, networkUUID)
	if err != nil {
		if err == store.ErrNotFound {
			return Network{}, nerrors.NotFound("network", networkUUID)
		}
		return Network{}, nerrors.Internal(err)
	}
	existing := obj.Value
	fabric, _ := existing["fabric"].(bool)

	var fieldErrs []nerrors.FieldError
	for name := range input {
		if immutableFields[name] || (fabric && fabricImmutableFields[name]) {
			fieldErrs = append(fieldErrs, nerrors.FieldError{
				Field: name, Code: nerrors.CodeInvalidParameter, Message: name + " is immutable",
			})
		}
	}
	if len(fieldErrs) > 0 {
		sort.Slice(fieldErrs, func(i, j int) bool { return fieldErrs[i].Field < fieldErrs[j].Field })
		return Network{}, nerrors.InvalidParameters(fieldErrs)
	}

	// validationInput seeds family/subnet/provision_start_ip/
	// provision_end_ip from the existing record when the caller's
	// request omits them, so updateSchema's family-coherence and
	// provision-range hooks re-validate the whole picture on every
	// update, not just the fields this call happens to touch.
	validationInput := map[string]any{}
	for k, v := range input {
		validationInput[k] = v
	}
	for _, name := range []string{"family", "subnet", "provision_start_ip", "provision_end_ip"} {
		if _, ok := validationInput[name]; !ok {
			validationInput[name] = existing[name]
		}
	}

	fields, verr := validation.Validate(ctx, updateSchema, validationInput)
	if verr != nil {
		return Network{}, verr
	}

	if _, ok := input["mtu"]; ok {
		nicTag, _ := existing["nic_tag"].(string)
		tagMTU, terr := s.tags.MTU(ctx, nicTag)
		if terr != nil {
			return Network{}, terr
		}
		if fields["mtu"].(int) > tagMTU {
			return Network{}, nerrors.InvalidParameters([]nerrors.FieldError{{
				Field: "mtu", Code: nerrors.CodeInvalidParameter, Message: "must not exceed the nic tag's mtu",
			}})
		}
	}

	merged := map[string]any{}
	for k, v := range existing {
		merged[k] = v
	}
	if _, ok := input["name"]; ok {
		merged["name"] = fields["name"].(string)
	}
	if _, ok := input["mtu"]; ok {
		merged["mtu"] = fields["mtu"].(int)
	}
	if _, ok := input["description"]; ok {
		merged["description"] = fields["description"]
	}
	if _, ok := input["resolvers"]; ok {
		merged["resolvers"] = toAny(ipStringsOf(fields["resolvers"]))
	}
	if _, ok := input["owner_uuids"]; ok {
		merged["owner_uuids"] = toAny(stringsOf(fields["owner_uuids"]))
	}
	if _, ok := input["routes"]; ok {
		routes, _ := fields["routes"].(map[string]routeEntry)
		merged["routes"] = routesToStrings(routes)
	}
	var gateway net.IP
	gatewayChanged := false
	if _, ok := input["gateway"]; ok {
		gatewayChanged = true
		gateway, _ = fields["gateway"].(net.IP)
		if gateway != nil {
			merged["gateway"] = gateway.String()
		} else {
			delete(merged, "gateway")
		}
	}
	if _, ok := input["name"]; ok {
		name, _ := merged["name"].(string)
		merged["name_str"] = namespaceOf(fabric, stringsOf(merged["owner_uuids"])) + ":" + name
	}

	var ops []store.Op
	startChanged, endChanged := false, false
	var newStart, newEnd net.IP
	if _, ok := input["provision_start_ip"]; ok {
		newStart = fields["provision_start_ip"].(net.IP)
		startChanged = true
	}
	if _, ok := input["provision_end_ip"]; ok {
		newEnd = fields["provision_end_ip"].(net.IP)
		endChanged = true
	}
	oldStart := net.ParseIP(fmt.Sprint(existing["provision_start_ip"]))
	oldEnd := net.ParseIP(fmt.Sprint(existing["provision_end_ip"]))

	if startChanged && !oldStart.Equal(newStart) {
		merged["provision_start_ip"] = newStart.String()
		relocateOps, rerr := s.relocatePlaceholder(ctx, networkUUID, cidrutil.Dec(oldStart), cidrutil.Dec(newStart))
		if rerr != nil {
			return Network{}, rerr
		}
		ops = append(ops, relocateOps...)
	}
	if endChanged && !oldEnd.Equal(newEnd) {
		merged["provision_end_ip"] = newEnd.String()
		relocateOps, rerr := s.relocatePlaceholder(ctx, networkUUID, cidrutil.Inc(oldEnd), cidrutil.Inc(newEnd))
		if rerr != nil {
			return Network{}, rerr
		}
		ops = append(ops, relocateOps...)
	}

	if gatewayChanged && gateway != nil {
		ops = append(ops, ipalloc.ReservedOp(networkUUID, gateway, ownerSeed(stringsOf(merged["owner_uuids"]))))
	}

	ops = append(ops, store.Op{Kind: store.OpPut, Bucket: bucketName, Key: networkUUID, Value: merged, Etag: store.Match(obj.Etag)})
	if err := s.store.Batch(ctx, ops); err != nil {
		if errors.Is(err, store.ErrEtagConflict) {
			return Network{}, nerrors.EtagConflict(bucketName, networkUUID)
		}
		return Network{}, nerrors.Internal(err)
	}

	logging.Info("network updated", "uuid", networkUUID)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "network", Key: networkUUID, Kind: changefeed.ChangeUpdate, Value: merged})
	return toNetwork(merged), nil
}

func (s *Service) relocatePlaceholder(ctx context.Context, networkUUID string, oldBoundary, newBoundary net.IP) ([]store.Op, *nerrors.Error) {
	var ops []store.Op
	if oldBoundary.Equal(newBoundary) {
		return ops, nil
	}
	oldRec, oerr := s.ipalloc.Get(ctx, networkUUID, oldBoundary)
	if oerr == nil && oldRec.Placeholder {
		ops = append(ops, store.Op{Kind: store.OpDelete, Bucket: ipalloc.BucketFor(networkUUID), Key: oldBoundary.String(), Etag: store.Match(oldRec.Etag)})
	}
	if _, nerr := s.ipalloc.Get(ctx, networkUUID, newBoundary); nerr != nil {
		ops = append(ops, ipalloc.PlaceholderOp(networkUUID, newBoundary))
	}
	return ops, nil
}

// Delete removes a network, failing if any NIC still references it.
func (s *Service) Delete(ctx context.Context, networkUUID string) *nerrors.Error {
	nics, err := s.store.FindObjects(ctx, "nics", store.Eq{Field: "network_uuid", Value: networkUUID}, store.FindOptions{Sort: "mac"})
	if err != nil && err != store.ErrBucketNotFound {
		return nerrors.Internal(err)
	}
	if len(nics) > 0 {
		macs := make([]string, len(nics))
		for i, n := range nics {
			macs[i], _ = n.Value["mac"].(string)
		}
		sort.Strings(macs)
		return nerrors.InUse("network is referenced by one or more nics", macs...)
	}

	ops := []store.Op{{Kind: store.OpDelete, Bucket: bucketName, Key: networkUUID}}
	if err := s.store.Batch(ctx, ops); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nerrors.NotFound("network", networkUUID)
		}
		return nerrors.Internal(err)
	}
	logging.Info("network deleted", "uuid", networkUUID)
	_ = s.publish.Publish(ctx, changefeed.Change{Resource: "network", Key: networkUUID, Kind: changefeed.ChangeDelete})
	return nil
}

func writeLegacyAddressFields(value map[string]any, family string, subnet *net.IPNet, start, end net.IP, gateway net.IP) {
	if bucketVersion > legacyAddressVersion || family != string(cidrutil.IPv4) {
		return
	}
	ones, _ := subnet.Mask.Size()
	value["subnet_start"] = subnet.IP.String()
	value["subnet_start_ip"] = subnet.IP.String()
	value["subnet_bits"] = ones
	if gateway != nil {
		value["gateway_addr"] = gateway.String()
	}
	if resolvers, ok := value["resolvers"].([]any); ok {
		legacy := make([]any, len(resolvers))
		copy(legacy, resolvers)
		value["resolver_addrs"] = legacy
	}
}

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
		case uuid.UUID:
			out = append(out, val.String())
		}
	}
	return out
}

func ipStringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if ip, ok := it.(net.IP); ok {
			out = append(out, ip.String())
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

func toNetwork(v map[string]any) Network {
	n := Network{}
	n.UUID, _ = v["uuid"].(string)
	n.Name, _ = v["name"].(string)
	n.Description, _ = v["description"].(string)
	n.NICTag, _ = v["nic_tag"].(string)
	n.VLANID, _ = v["vlan_id"].(int)
	n.VNetID, _ = v["vnet_id"].(int)
	n.MTU, _ = v["mtu"].(int)
	n.Family, _ = v["family"].(string)
	n.Subnet, _ = v["subnet"].(string)
	n.ProvisionStartIP, _ = v["provision_start_ip"].(string)
	n.ProvisionEndIP, _ = v["provision_end_ip"].(string)
	n.Gateway, _ = v["gateway"].(string)
	n.Resolvers = stringsOf(v["resolvers"])
	n.OwnerUUIDs = stringsOf(v["owner_uuids"])
	n.Fabric, _ = v["fabric"].(bool)
	n.InternetNAT, _ = v["internet_nat"].(bool)
	n.GatewayProvisioned, _ = v["gateway_provisioned"].(bool)
	if routes, ok := v["routes"].(map[string]string); ok {
		n.Routes = routes
	}
	return n
}

// PoolLookupAdapter narrows a Service to networkpool.NetworkLookup, for
// pool family/owner-subset validation, without networkpool importing
// this package.
type PoolLookupAdapter struct{ Service *Service }

// GetUnfiltered fetches a network's narrow info with no owner-visibility
// check, for internal cross-resource validation.
func (a PoolLookupAdapter) GetUnfiltered(ctx context.Context, networkUUID string) (networkpool.NetworkInfo, *nerrors.Error) {
	n, err := a.Service.GetUnfiltered(ctx, networkUUID)
	if err != nil {
		return networkpool.NetworkInfo{}, err
	}
	return networkpool.NetworkInfo{UUID: n.UUID, Family: n.Family, NICTag: n.NICTag, OwnerUUIDs: n.OwnerUUIDs}, nil
}

// namespaceOf reports the name_str namespace used for uniqueness: "global"
// for classical networks, the sole owner uuid for fabrics.
func namespaceOf(fabric bool, owners []string) string {
	if fabric && len(owners) > 0 {
		return owners[0]
	}
	return "global"
}
