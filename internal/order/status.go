package order

import (
	"fmt"
	"strings"

	"finnbourse.org/internal/policy"
)

// Status is one point in the order workflow graph. The set is closed;
// transitions are legal only along the edges in successors below.
type Status string

const (
	StatusCreated            Status = "created"
	StatusPremiereValidation Status = "premiere-validation"
	StatusValidationFinale   Status = "validation-finale"
	StatusTCCPremiere        Status = "validation-tcc-premiere"
	StatusTCCFinale          Status = "validation-tcc-finale"
	StatusExecution          Status = "execution"
	StatusResultats          Status = "resultats"
	StatusFinal              Status = "final-state"

	StatusRetourPremiere    Status = "validation-retour-premiere"
	StatusRetourFinale      Status = "validation-retour-finale"
	StatusTCCRetourPremiere Status = "validation-tcc-retour-premiere"
	StatusTCCRetourFinale   Status = "validation-tcc-retour-finale"
)

// successors is the directed workflow graph: the only source of truth for
// transition legality. Agency-side rejections allow one corrective
// resubmission back into the rejecting stage; the TCC rejection states are
// the deepest in their branch and terminal.
var successors = map[Status][]Status{
	StatusCreated:            {StatusPremiereValidation},
	StatusPremiereValidation: {StatusValidationFinale, StatusRetourPremiere},
	StatusRetourPremiere:     {StatusPremiereValidation},
	StatusValidationFinale:   {StatusTCCPremiere, StatusRetourFinale},
	StatusRetourFinale:       {StatusValidationFinale},
	StatusTCCPremiere:        {StatusTCCFinale, StatusTCCRetourPremiere},
	StatusTCCRetourPremiere:  {},
	StatusTCCFinale:          {StatusExecution, StatusTCCRetourFinale},
	StatusTCCRetourFinale:    {},
	StatusExecution:          {StatusResultats},
	StatusResultats:          {StatusFinal},
	StatusFinal:              {},
}

// stageOwner maps each status to the page whose modify permission gates a
// transition into that status.
var stageOwner = map[Status]policy.Page{
	StatusCreated:            policy.PageOrdreCreation,
	StatusPremiereValidation: policy.PagePremiereValidation,
	StatusRetourPremiere:     policy.PagePremiereValidation,
	StatusValidationFinale:   policy.PageValidationFinale,
	StatusRetourFinale:       policy.PageValidationFinale,
	StatusTCCPremiere:        policy.PageTCCPremiereValidation,
	StatusTCCRetourPremiere:  policy.PageTCCPremiereValidation,
	StatusTCCFinale:          policy.PageTCCValidationFinale,
	StatusTCCRetourFinale:    policy.PageTCCValidationFinale,
	StatusExecution:          policy.PageExecution,
	StatusResultats:          policy.PageResultats,
	StatusFinal:              policy.PageResultats,
}

// ParseStatus converts a wire-format status string to a Status.
func ParseStatus(raw string) (Status, error) {
	candidate := Status(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := successors[candidate]; !ok {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return candidate, nil
}

// Successors returns the legal next statuses from s.
func Successors(s Status) []Status {
	next := successors[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// IsSuccessor reports whether target is a direct successor of s.
func IsSuccessor(s, target Status) bool {
	for _, next := range successors[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted from s.
func IsTerminal(s Status) bool {
	next, ok := successors[s]
	return ok && len(next) == 0
}

// IsRejection reports whether s is one of the retour states.
func IsRejection(s Status) bool {
	switch s {
	case StatusRetourPremiere, StatusRetourFinale, StatusTCCRetourPremiere, StatusTCCRetourFinale:
		return true
	}
	return false
}

// StageOwner returns the page that owns transitions into target.
func StageOwner(target Status) policy.Page {
	return stageOwner[target]
}

func (s Status) String() string { return string(s) }
