package model

import "strings"

// AttachmentPoint is one of the resource kinds a filter row may attach to.
type AttachmentPoint string

const (
	AttachListener    AttachmentPoint = "Listener"
	AttachRoute       AttachmentPoint = "Route"
	AttachRouteConfig AttachmentPoint = "RouteConfig"
	AttachVirtualHost AttachmentPoint = "VirtualHost"
	AttachCluster     AttachmentPoint = "Cluster"
)

// PerRouteBehavior describes how a filter type may be overridden per-route.
type PerRouteBehavior string

const (
	PerRouteFullConfig    PerRouteBehavior = "FullConfig"
	PerRouteReferenceOnly PerRouteBehavior = "ReferenceOnly"
	PerRouteDisableOnly   PerRouteBehavior = "DisableOnly"
	PerRouteNotSupported  PerRouteBehavior = "NotSupported"
)

// FilterAttachment names one resource a filter row is attached to.
type FilterAttachment struct {
	Point        AttachmentPoint
	ResourceID   string
	ResourceName string
}

// FilterRow is the stored HTTP filter configuration entity. The "custom
// WASM" pseudo-type (FilterType == "custom_wasm_<id>") is expanded in place
// by internal/filters before compilation.
type FilterRow struct {
	ID            string
	Name          string
	Team          string
	FilterType    string
	Configuration map[string]interface{}
	Version       int64
	Source        ResourceSource
	Attachments   []FilterAttachment
}

// IsCustomWasm reports whether this row is a "custom_wasm_<id>" pseudo-type
// awaiting expansion into a real wasm filter row.
func (f *FilterRow) IsCustomWasm() (binaryID string, ok bool) {
	const prefix = "custom_wasm_"
	if !strings.HasPrefix(f.FilterType, prefix) {
		return "", false
	}
	return strings.TrimPrefix(f.FilterType, prefix), true
}

func (f *FilterRow) Validate() error {
	if f.Name == "" {
		return invalid("name", "filter row name must not be empty")
	}
	if f.FilterType == "" {
		return invalid("filter_type", "filter row %q requires a filter_type", f.Name)
	}
	if err := f.validateConfiguration(); err != nil {
		return err
	}
	return nil
}

// validateConfiguration decodes f.Configuration into the typed struct for
// f.FilterType, when one exists, and runs its invariants. Filter types with
// no typed struct here (envoy validates their schema at config-load time)
// pass through unchecked.
func (f *FilterRow) validateConfiguration() error {
	switch f.FilterType {
	case "cors":
		return DecodeCORSPolicy(f.Configuration).Validate()
	case "local_rate_limit":
		return DecodeLocalRateLimitConfig(f.Configuration).Validate()
	case "compressor":
		return DecodeCompressorGzipConfig(f.Configuration).Validate()
	case "custom_response":
		return DecodeCustomResponseConfig(f.Configuration).Validate()
	case "header_mutation":
		return DecodeHeaderMutationConfig(f.Configuration).Validate()
	default:
		return nil
	}
}

// AttachedTo reports whether the row has a direct attachment to resourceID
// at the given attachment point. Attachments reached through another
// resource (a route config referenced by a listener) are not followed.
func (f *FilterRow) AttachedTo(point AttachmentPoint, resourceID string) bool {
	for _, a := range f.Attachments {
		if a.Point == point && a.ResourceID == resourceID {
			return true
		}
	}
	return false
}
