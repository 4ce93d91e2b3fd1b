package policy

import (
	"fmt"
	"strings"
)

// Role identifies a back-office principal kind. The set is closed: a role
// outside this list never gains access to anything (fail-closed lookups).
type Role string

const (
	RoleInvestisseur             Role = "investisseur"
	RoleAgenceInitiateur         Role = "agence.ordre_initiateur"
	RoleAgencePremiereValidation Role = "agence.premiere_validation"
	RoleAgenceValidationFinale   Role = "agence.validation_finale"
	RoleAgenceConsultation       Role = "agence.consultation"
	RoleTCCPremiereValidation    Role = "tcc.premiere_validation"
	RoleTCCValidationFinale      Role = "tcc.validation_finale"
	RoleTCCConsultation          Role = "tcc.consultation"
	RoleIOBExecution             Role = "iob.execution"
	RoleIOBResultats             Role = "iob.resultats"
	RoleIOBConsultation          Role = "iob.consultation"
	RoleSuperAdmin               Role = "admin.super"
)

var allRoles = []Role{
	RoleInvestisseur,
	RoleAgenceInitiateur,
	RoleAgencePremiereValidation,
	RoleAgenceValidationFinale,
	RoleAgenceConsultation,
	RoleTCCPremiereValidation,
	RoleTCCValidationFinale,
	RoleTCCConsultation,
	RoleIOBExecution,
	RoleIOBResultats,
	RoleIOBConsultation,
	RoleSuperAdmin,
}

// AllRoles returns every defined role.
func AllRoles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// ParseRole converts a wire-format role string to a Role.
func ParseRole(raw string) (Role, error) {
	candidate := Role(strings.TrimSpace(strings.ToLower(raw)))
	for _, r := range allRoles {
		if r == candidate {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// IsValid reports whether the role belongs to the closed set.
func (r Role) IsValid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }
