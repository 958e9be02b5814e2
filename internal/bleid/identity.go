package bleid

import "fmt"

// maxAdvertisedNameLen is the practical limit for a name carried in a legacy
// advertising payload alongside a 16-bit service UUID.
const maxAdvertisedNameLen = 20

// AttributePair names one (service, characteristic) pair exposed or targeted
// by a node. Both identifiers are stored normalized.
type AttributePair struct {
	Service        string
	Characteristic string
}

// Identity describes how a node presents itself over the air: the advertised
// name plus the attribute pairs it exposes in one role.
type Identity struct {
	Name  string
	Pairs []AttributePair
}

// NewIdentity validates and normalizes an advertised identity. Within one
// role every characteristic identifier must be unique.
func NewIdentity(name string, pairs ...AttributePair) (Identity, error) {
	if name == "" {
		return Identity{}, fmt.Errorf("advertised name cannot be empty")
	}
	if len(name) > maxAdvertisedNameLen {
		return Identity{}, fmt.Errorf("advertised name %q exceeds %d bytes", name, maxAdvertisedNameLen)
	}

	seen := make(map[string]struct{}, len(pairs))
	normalized := make([]AttributePair, 0, len(pairs))
	for _, p := range pairs {
		ids, err := ValidateUUID(p.Service, p.Characteristic)
		if err != nil {
			return Identity{}, fmt.Errorf("identity %q: %w", name, err)
		}
		if _, dup := seen[ids[1]]; dup {
			return Identity{}, fmt.Errorf("identity %q: duplicate characteristic %s", name, ids[1])
		}
		seen[ids[1]] = struct{}{}
		normalized = append(normalized, AttributePair{Service: ids[0], Characteristic: ids[1]})
	}

	return Identity{Name: name, Pairs: normalized}, nil
}

// ServiceUUIDs returns the distinct normalized service identifiers, in
// declaration order.
func (id Identity) ServiceUUIDs() []string {
	seen := make(map[string]struct{}, len(id.Pairs))
	uuids := make([]string, 0, len(id.Pairs))
	for _, p := range id.Pairs {
		if _, ok := seen[p.Service]; ok {
			continue
		}
		seen[p.Service] = struct{}{}
		uuids = append(uuids, p.Service)
	}
	return uuids
}
