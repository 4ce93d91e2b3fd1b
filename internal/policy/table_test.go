package policy

import (
	"strings"
	"testing"
)

func TestLoadEmbeddedTable(t *testing.T) {
	table, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, role := range AllRoles() {
		if role == RoleSuperAdmin {
			continue
		}
		if pages := table.PermittedPages(role); len(pages) == 0 {
			t.Errorf("role %s has no permitted pages", role)
		}
	}
}

func TestUnknownRoleGetsNothing(t *testing.T) {
	table := MustLoad()
	const ghost = Role("agence.ghost")

	if pages := table.PermittedPages(ghost); pages != nil {
		t.Fatalf("PermittedPages(%s) = %v, want nil", ghost, pages)
	}
	for _, page := range AllPages() {
		if table.CanView(ghost, page) {
			t.Errorf("CanView(%s, %s) = true", ghost, page)
		}
		if table.CanModify(ghost, page) {
			t.Errorf("CanModify(%s, %s) = true", ghost, page)
		}
	}
}

func TestConsultationRolesNeverModify(t *testing.T) {
	table := MustLoad()
	for _, role := range []Role{RoleAgenceConsultation, RoleTCCConsultation, RoleIOBConsultation} {
		if !table.IsConsultationOnly(role) {
			t.Errorf("IsConsultationOnly(%s) = false", role)
		}
		pages := table.PermittedPages(role)
		if len(pages) == 0 {
			t.Fatalf("consultation role %s has no pages", role)
		}
		for _, page := range pages {
			if !table.CanView(role, page) {
				t.Errorf("CanView(%s, %s) = false for a permitted page", role, page)
			}
			if table.CanModify(role, page) {
				t.Errorf("CanModify(%s, %s) = true for a consultation role", role, page)
			}
		}
	}
}

func TestSuperAdminBypassesTable(t *testing.T) {
	table := MustLoad()
	if got, want := len(table.PermittedPages(RoleSuperAdmin)), len(AllPages()); got != want {
		t.Fatalf("super admin sees %d pages, want %d", got, want)
	}
	for _, page := range AllPages() {
		if !table.CanModify(RoleSuperAdmin, page) {
			t.Errorf("CanModify(admin.super, %s) = false", page)
		}
	}
	if table.CanModify(RoleSuperAdmin, Page("ordres/unknown")) {
		t.Error("super admin may modify an unknown page")
	}
}

func TestStageOwnerPagesAreModifiable(t *testing.T) {
	table := MustLoad()
	cases := []struct {
		role Role
		page Page
	}{
		{RoleAgenceInitiateur, PageOrdreCreation},
		{RoleAgencePremiereValidation, PagePremiereValidation},
		{RoleAgenceValidationFinale, PageValidationFinale},
		{RoleTCCPremiereValidation, PageTCCPremiereValidation},
		{RoleTCCValidationFinale, PageTCCValidationFinale},
		{RoleIOBExecution, PageExecution},
		{RoleIOBResultats, PageResultats},
	}
	for _, tc := range cases {
		if !table.CanModify(tc.role, tc.page) {
			t.Errorf("CanModify(%s, %s) = false", tc.role, tc.page)
		}
	}
	// The grant does not spill over to other stages.
	if table.CanModify(RoleAgencePremiereValidation, PageValidationFinale) {
		t.Error("agence.premiere_validation may modify the final validation stage")
	}
}

func TestParseRejectsBrokenTables(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing role",
			yaml: "roles:\n  investisseur:\n    pages:\n      - page: ordres/creation\n",
			want: "missing from table",
		},
		{
			name: "unknown page",
			yaml: "roles:\n  investisseur:\n    pages:\n      - page: ordres/nope\n",
			want: "unknown page",
		},
		{
			name: "unknown role",
			yaml: "roles:\n  not.a.role:\n    pages:\n      - page: ordres/creation\n",
			want: "unknown role",
		},
		{
			name: "empty pages",
			yaml: "roles:\n  investisseur:\n    pages: []\n",
			want: "has no pages",
		},
		{
			name: "duplicate page",
			yaml: "roles:\n  investisseur:\n    pages:\n      - page: editions\n      - page: editions\n",
			want: "twice",
		},
		{
			name: "consultation role with modify",
			yaml: "roles:\n  agence.consultation:\n    consultation: true\n    pages:\n      - page: ordres/carnet\n        modify: true\n",
			want: "cannot modify",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("parse accepted a broken table")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  TCC.Premiere_Validation ")
	if err != nil {
		t.Fatalf("ParseRole: %v", err)
	}
	if role != RoleTCCPremiereValidation {
		t.Fatalf("ParseRole = %s", role)
	}
	if _, err := ParseRole("manager"); err == nil {
		t.Fatal("ParseRole accepted an unknown role")
	}
}
