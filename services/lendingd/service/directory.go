package service

// Directory answers account questions from static configuration. Names
// follow the 1-12 character [a-z1-5.] account format.
type Directory struct {
	contracts map[string]struct{}
	unknown   map[string]struct{}
}

func NewDirectory(contracts, unknown []string) *Directory {
	d := &Directory{
		contracts: make(map[string]struct{}, len(contracts)),
		unknown:   make(map[string]struct{}, len(unknown)),
	}
	for _, c := range contracts {
		d.contracts[c] = struct{}{}
	}
	for _, u := range unknown {
		d.unknown[u] = struct{}{}
	}
	return d
}

func (d *Directory) IsAccount(name string) bool {
	if !validName(name) {
		return false
	}
	_, blocked := d.unknown[name]
	return !blocked
}

func (d *Directory) IsContract(name string) bool {
	_, ok := d.contracts[name]
	return ok
}

func validName(name string) bool {
	if len(name) == 0 || len(name) > 12 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '1' && r <= '5':
		case r == '.':
		default:
			return false
		}
	}
	return true
}

// StaticVotes is a fixed governance weight table.
type StaticVotes map[string]uint64

func (v StaticVotes) Votes(account string) uint64 { return v[account] }
