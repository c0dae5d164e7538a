package peripheral

import "sort"

// Descriptor is a Peripheral Descriptor: a local name, a type, and a sorted,
// deduplicated method set.
type Descriptor struct {
	Name    string
	Type    string
	Methods []string
}

// Directory wraps a Host with the enumeration operations the rest of the
// fabric (RPC host, Discovery's announce payload) depends on.
type Directory struct {
	host *Host
}

// NewDirectory wraps host.
func NewDirectory(host *Host) *Directory {
	return &Directory{host: host}
}

// ListNames returns every locally-attached peripheral's name, in the
// snapshot taken at call time.
func (d *Directory) ListNames() []string {
	snap := d.host.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetType returns the peripheral's type, or ("", false) if unattached.
func (d *Directory) GetType(name string) (string, bool) {
	snap := d.host.Snapshot()
	p, exists := snap[name]
	if !exists {
		return "", false
	}
	return p.Type, true
}

// GetMethods returns the peripheral's method set, sorted and deduplicated.
// Returns (nil, false) if the peripheral isn't attached.
func (d *Directory) GetMethods(name string) ([]string, bool) {
	snap := d.host.Snapshot()
	p, exists := snap[name]
	if !exists {
		return nil, false
	}

	seen := make(map[string]struct{}, len(p.Methods))
	methods := make([]string, 0, len(p.Methods))
	for m := range p.Methods {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods, true
}

// Describe returns the full Peripheral Descriptor for name, or (nil, false)
// if unattached.
func (d *Directory) Describe(name string) (*Descriptor, bool) {
	typ, ok := d.GetType(name)
	if !ok {
		return nil, false
	}
	methods, _ := d.GetMethods(name)
	return &Descriptor{Name: name, Type: typ, Methods: methods}, true
}

// DescribeAll returns Descriptors for every locally-attached peripheral,
// sorted by name — the shape Discovery's ANNOUNCE payload is built from.
func (d *Directory) DescribeAll() []*Descriptor {
	names := d.ListNames()
	out := make([]*Descriptor, 0, len(names))
	for _, name := range names {
		desc, ok := d.Describe(name)
		if ok {
			out = append(out, desc)
		}
	}
	return out
}
