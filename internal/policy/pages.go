package policy

// Page identifies a navigable back-office surface. Workflow stages map onto
// the ordres/* pages; the remaining pages cover securities, actor
// administration and document exports.
type Page string

const (
	PageOrdreCreation         Page = "ordres/creation"
	PageOrdreCarnet           Page = "ordres/carnet"
	PagePremiereValidation    Page = "ordres/premiere-validation"
	PageValidationFinale      Page = "ordres/validation-finale"
	PageTCCPremiereValidation Page = "ordres/tcc/premiere-validation"
	PageTCCValidationFinale   Page = "ordres/tcc/validation-finale"
	PageExecution             Page = "ordres/execution"
	PageResultats             Page = "ordres/resultats"
	PageTitres                Page = "titres"
	PageActeurs               Page = "acteurs"
	PageEditions              Page = "editions"
)

var allPages = []Page{
	PageOrdreCreation,
	PageOrdreCarnet,
	PagePremiereValidation,
	PageValidationFinale,
	PageTCCPremiereValidation,
	PageTCCValidationFinale,
	PageExecution,
	PageResultats,
	PageTitres,
	PageActeurs,
	PageEditions,
}

// AllPages returns every defined page identifier.
func AllPages() []Page {
	out := make([]Page, len(allPages))
	copy(out, allPages)
	return out
}

func (p Page) isKnown() bool {
	for _, known := range allPages {
		if p == known {
			return true
		}
	}
	return false
}

func (p Page) String() string { return string(p) }
