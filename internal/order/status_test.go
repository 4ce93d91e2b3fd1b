package order

import "testing"

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Premiere-Validation ")
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if s != StatusPremiereValidation {
		t.Fatalf("ParseStatus = %s", s)
	}
	if _, err := ParseStatus("pending"); err == nil {
		t.Fatal("ParseStatus accepted an unknown status")
	}
}

func TestSuccessorEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		legal    bool
	}{
		{StatusCreated, StatusPremiereValidation, true},
		{StatusCreated, StatusFinal, false},
		{StatusCreated, StatusValidationFinale, false},
		{StatusPremiereValidation, StatusValidationFinale, true},
		{StatusPremiereValidation, StatusRetourPremiere, true},
		{StatusRetourPremiere, StatusPremiereValidation, true},
		{StatusValidationFinale, StatusTCCPremiere, true},
		{StatusValidationFinale, StatusRetourFinale, true},
		{StatusRetourFinale, StatusValidationFinale, true},
		{StatusTCCPremiere, StatusTCCFinale, true},
		{StatusTCCPremiere, StatusTCCRetourPremiere, true},
		{StatusTCCFinale, StatusExecution, true},
		{StatusTCCFinale, StatusTCCRetourFinale, true},
		{StatusExecution, StatusResultats, true},
		{StatusResultats, StatusFinal, true},
		{StatusResultats, StatusExecution, false},
		{StatusFinal, StatusCreated, false},
	}
	for _, tc := range cases {
		if got := IsSuccessor(tc.from, tc.to); got != tc.legal {
			t.Errorf("IsSuccessor(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.legal)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []Status{StatusFinal, StatusTCCRetourPremiere, StatusTCCRetourFinale}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false", s)
		}
	}
	for s := range successors {
		isListed := false
		for _, term := range terminal {
			if s == term {
				isListed = true
			}
		}
		if IsTerminal(s) != isListed {
			t.Errorf("IsTerminal(%s) = %v", s, IsTerminal(s))
		}
	}
}

func TestRejectionStates(t *testing.T) {
	for s := range successors {
		want := s == StatusRetourPremiere || s == StatusRetourFinale ||
			s == StatusTCCRetourPremiere || s == StatusTCCRetourFinale
		if got := IsRejection(s); got != want {
			t.Errorf("IsRejection(%s) = %v, want %v", s, got, want)
		}
	}
}

func TestEveryStatusHasAStageOwner(t *testing.T) {
	for s := range successors {
		if StageOwner(s) == "" {
			t.Errorf("status %s has no owning page", s)
		}
	}
}
