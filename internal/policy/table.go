package policy

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type pageGrant struct {
	Page   string `yaml:"page"`
	Modify bool   `yaml:"modify"`
}

type roleEntry struct {
	Consultation bool        `yaml:"consultation"`
	Pages        []pageGrant `yaml:"pages"`
}

type policyDocument struct {
	Roles map[string]roleEntry `yaml:"roles"`
}

type entry struct {
	consultation bool
	pages        []Page
	modify       map[Page]bool
}

// Table is the static role policy table. It is immutable after Load and
// safe for concurrent use.
type Table struct {
	entries map[Role]entry
}

// Load parses and validates the embedded policy document. The table is
// total: a role defined in code but absent from the document, an unknown
// page, an empty page list or a consultation role granting modify all
// fail the load.
func Load() (*Table, error) {
	return parse(policyYAML)
}

// MustLoad is Load for process bootstrap paths where a broken embedded
// table is unrecoverable.
func MustLoad() *Table {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

func parse(raw []byte) (*Table, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: parse table: %w", err)
	}

	entries := make(map[Role]entry, len(doc.Roles))
	for name, def := range doc.Roles {
		role, err := ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		if len(def.Pages) == 0 {
			return nil, fmt.Errorf("policy: role %s has no pages", role)
		}
		e := entry{
			consultation: def.Consultation,
			modify:       make(map[Page]bool, len(def.Pages)),
		}
		for _, grant := range def.Pages {
			page := Page(grant.Page)
			if !page.isKnown() {
				return nil, fmt.Errorf("policy: role %s references unknown page %q", role, grant.Page)
			}
			if _, dup := e.modify[page]; dup {
				return nil, fmt.Errorf("policy: role %s lists page %s twice", role, page)
			}
			if def.Consultation && grant.Modify {
				return nil, fmt.Errorf("policy: consultation role %s cannot modify page %s", role, page)
			}
			e.pages = append(e.pages, page)
			e.modify[page] = grant.Modify
		}
		entries[role] = e
	}

	// Totality: every defined role must carry an entry.
	for _, role := range AllRoles() {
		if _, ok := entries[role]; !ok {
			return nil, fmt.Errorf("policy: role %s missing from table", role)
		}
	}

	return &Table{entries: entries}, nil
}

// PermittedPages returns the pages reachable by the role, sorted. Unknown
// roles get the empty set.
func (t *Table) PermittedPages(role Role) []Page {
	if role == RoleSuperAdmin {
		return AllPages()
	}
	e, ok := t.entries[role]
	if !ok {
		return nil
	}
	out := make([]Page, len(e.pages))
	copy(out, e.pages)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanModify reports whether the role may trigger mutating actions on the
// page. Super-admin modifies every page; consultation roles and unknown
// roles never modify anything.
func (t *Table) CanModify(role Role, page Page) bool {
	if role == RoleSuperAdmin {
		return page.isKnown()
	}
	e, ok := t.entries[role]
	if !ok || e.consultation {
		return false
	}
	return e.modify[page]
}

// CanView reports whether the page is reachable for the role.
func (t *Table) CanView(role Role, page Page) bool {
	if role == RoleSuperAdmin {
		return page.isKnown()
	}
	e, ok := t.entries[role]
	if !ok {
		return false
	}
	_, granted := e.modify[page]
	return granted
}

// IsConsultationOnly reports whether the role may only view its pages.
func (t *Table) IsConsultationOnly(role Role) bool {
	e, ok := t.entries[role]
	return ok && e.consultation
}
