package api

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/grundstein/gas/internal/schema"
)

// Layout selects how the top level of the API directory is interpreted
type Layout int

const (
	// MultiTenant expects <root>/<hostname>/<version>/...
	MultiTenant Layout = iota
	// SingleTenant expects <root>/<version>/... and serves every hostname
	SingleTenant
)

// String returns the config name of the layout
func (l Layout) String() string {
	switch l {
	case MultiTenant:
		return "multi"
	case SingleTenant:
		return "single"
	default:
		return "unknown"
	}
}

// ParseLayout parses a layout config name
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "multi", "multi-tenant":
		return MultiTenant, nil
	case "single", "single-tenant":
		return SingleTenant, nil
	default:
		return MultiTenant, fmt.Errorf("unknown api layout %q (expected multi or single)", s)
	}
}

// EndpointKind records how an endpoint was registered
type EndpointKind int

const (
	// KindHandler is an explicitly loaded handler file
	KindHandler EndpointKind = iota
	// KindCollection is generated from the data file's schema
	KindCollection
	// KindInternal is a built-in endpoint under /_
	KindInternal
)

// String returns the string representation of EndpointKind
func (k EndpointKind) String() string {
	switch k {
	case KindHandler:
		return "handler"
	case KindCollection:
		return "collection"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// RouteInfo describes a registered endpoint for introspection
type RouteInfo struct {
	Host    string
	Version string
	Path    string
	Kind    EndpointKind
	Source  string
}

type registration struct {
	endpoint Endpoint
	kind     EndpointKind
	source   string
}

// VersionScope is the routing and data context of one API version
type VersionScope struct {
	Host        string
	Version     string
	Collections Collections
	Schema      schema.Schema

	endpoints map[string]registration
	frozen    bool
}

// NewVersionScope creates a scope holding the given data source (may be nil)
func NewVersionScope(host, version string, data *DataSource) *VersionScope {
	scope := &VersionScope{
		Host:      host,
		Version:   version,
		endpoints: make(map[string]registration),
	}
	if data != nil {
		scope.Collections = data.Collections
		scope.Schema = data.Schema
	}
	return scope
}

// Handle registers ep at path, replacing any previous registration.
// Scopes are read-only once their table is built.
func (s *VersionScope) Handle(path string, ep Endpoint, kind EndpointKind, source string) {
	if s.frozen {
		panic(fmt.Sprintf("api: Handle(%q) on a scope of a built route table", path))
	}
	s.endpoints[path] = registration{endpoint: ep, kind: kind, source: source}
}

// Endpoint returns the endpoint registered at path
func (s *VersionScope) Endpoint(path string) (Endpoint, bool) {
	reg, ok := s.endpoints[path]
	if !ok {
		return nil, false
	}
	return reg.endpoint, true
}

// Kind returns how the endpoint at path was registered
func (s *VersionScope) Kind(path string) (EndpointKind, bool) {
	reg, ok := s.endpoints[path]
	return reg.kind, ok
}

// Paths returns every registered path, sorted
func (s *VersionScope) Paths() []string {
	paths := make([]string, 0, len(s.endpoints))
	for path := range s.endpoints {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// PublicPaths returns the sorted paths, excluding internal ones under /_
func (s *VersionScope) PublicPaths() []string {
	paths := make([]string, 0, len(s.endpoints))
	for _, path := range s.Paths() {
		if !strings.HasPrefix(path, "/_") {
			paths = append(paths, path)
		}
	}
	return paths
}

// Routes returns introspection info for every endpoint, sorted by path
func (s *VersionScope) Routes() []RouteInfo {
	routes := make([]RouteInfo, 0, len(s.endpoints))
	for _, path := range s.Paths() {
		reg := s.endpoints[path]
		routes = append(routes, RouteInfo{
			Host:    s.Host,
			Version: s.Version,
			Path:    path,
			Kind:    reg.kind,
			Source:  reg.source,
		})
	}
	return routes
}

// RouteTable maps hostnames to version scopes. It is immutable once built.
type RouteTable struct {
	layout  Layout
	hosts   map[string]map[string]*VersionScope
	builtAt time.Time
}

// Layout returns the directory layout the table was built for
func (t *RouteTable) Layout() Layout {
	return t.layout
}

// BuiltAt returns when the table was built
func (t *RouteTable) BuiltAt() time.Time {
	return t.builtAt
}

// Empty reports whether the table has no version scopes at all
func (t *RouteTable) Empty() bool {
	for _, versions := range t.hosts {
		if len(versions) > 0 {
			return false
		}
	}
	return true
}

// Hosts returns the sorted hostnames. Single-tenant tables have none.
func (t *RouteTable) Hosts() []string {
	if t.layout == SingleTenant {
		return nil
	}
	hosts := make([]string, 0, len(t.hosts))
	for host := range t.hosts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// versions resolves the version map serving hostname
func (t *RouteTable) versions(hostname string) (map[string]*VersionScope, bool) {
	if t.layout == SingleTenant {
		versions := t.hosts[""]
		return versions, len(versions) > 0
	}
	versions, ok := t.hosts[hostname]
	return versions, ok
}

// HasHost reports whether the table serves hostname.
// A single-tenant table serves every hostname unless it is empty.
func (t *RouteTable) HasHost(hostname string) bool {
	_, ok := t.versions(hostname)
	return ok
}

// VersionKeys returns the sorted versions served for hostname
func (t *RouteTable) VersionKeys(hostname string) []string {
	versions, _ := t.versions(hostname)
	keys := make([]string, 0, len(versions))
	for version := range versions {
		keys = append(keys, version)
	}
	sort.Strings(keys)
	return keys
}

// ResolveScope returns the version scope for hostname and version
func (t *RouteTable) ResolveScope(hostname, version string) (*VersionScope, bool) {
	versions, ok := t.versions(hostname)
	if !ok {
		return nil, false
	}
	scope, ok := versions[version]
	return scope, ok
}

// Scopes returns every version scope ordered by host then version
func (t *RouteTable) Scopes() []*VersionScope {
	hosts := make([]string, 0, len(t.hosts))
	for host := range t.hosts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	scopes := make([]*VersionScope, 0)
	for _, host := range hosts {
		versions := t.hosts[host]
		keys := make([]string, 0, len(versions))
		for version := range versions {
			keys = append(keys, version)
		}
		sort.Strings(keys)
		for _, version := range keys {
			scopes = append(scopes, versions[version])
		}
	}
	return scopes
}

// TableBuilder assembles a RouteTable from version scopes
type TableBuilder struct {
	layout Layout
	hosts  map[string]map[string]*VersionScope
}

// NewTableBuilder creates a builder for the given layout
func NewTableBuilder(layout Layout) *TableBuilder {
	return &TableBuilder{
		layout: layout,
		hosts:  make(map[string]map[string]*VersionScope),
	}
}

// AddHost registers a hostname, even if it ends up without versions
func (b *TableBuilder) AddHost(host string) *TableBuilder {
	if b.layout == SingleTenant {
		host = ""
	}
	if _, ok := b.hosts[host]; !ok {
		b.hosts[host] = make(map[string]*VersionScope)
	}
	return b
}

// Add registers a version scope under its host
func (b *TableBuilder) Add(scope *VersionScope) *TableBuilder {
	host := scope.Host
	if b.layout == SingleTenant {
		host = ""
	}
	b.AddHost(host)
	b.hosts[host][scope.Version] = scope
	return b
}

// Build freezes every scope and returns the table.
// The builder must not be used afterwards.
func (b *TableBuilder) Build() *RouteTable {
	for _, versions := range b.hosts {
		for _, scope := range versions {
			scope.frozen = true
		}
	}
	return &RouteTable{
		layout:  b.layout,
		hosts:   b.hosts,
		builtAt: time.Now(),
	}
}

// Holder publishes the current route table to concurrent readers.
// Reloads swap in a complete new table, never a partially built one.
type Holder struct {
	table atomic.Pointer[RouteTable]
}

// NewHolder creates a holder serving table
func NewHolder(table *RouteTable) *Holder {
	h := &Holder{}
	h.Store(table)
	return h
}

// Load returns the current table
func (h *Holder) Load() *RouteTable {
	return h.table.Load()
}

// Store replaces the current table and returns the previous one
func (h *Holder) Store(table *RouteTable) *RouteTable {
	return h.table.Swap(table)
}
