package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// UnknownClient is used when no client can be derived from a name.
const UnknownClient = "Unknown Client"

var titleCase = cases.Title(language.Und)

// ExtractClientName derives the client from an opportunity name:
// "Acme - Line upgrade" gives "Acme", "Line upgrade para acme corp" gives
// "Acme Corp", "Acme Corp Project" gives "Acme Corp", otherwise the first two
// words are used.
func ExtractClientName(name string) string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return UnknownClient
	}

	if before, _, ok := strings.Cut(clean, " - "); ok {
		return strings.TrimSpace(before)
	}

	if _, after, ok := strings.Cut(strings.ToLower(clean), " para "); ok {
		return titleCase.String(strings.TrimSpace(after))
	}

	words := strings.Fields(clean)
	if len(words) > 1 {
		last := strings.ToLower(words[len(words)-1])
		if strings.Contains(last, "project") || strings.Contains(last, "proyecto") {
			return strings.Join(words[:len(words)-1], " ")
		}
		return strings.Join(words[:2], " ")
	}
	return clean
}

// ClassifyCompany maps a region code to the billing company.
func ClassifyCompany(region string) string {
	r := strings.ToUpper(strings.TrimSpace(region))
	switch {
	case strings.HasPrefix(r, "US"):
		return constants.CompanyLLC
	case strings.HasPrefix(r, "MX"):
		return constants.CompanySAPI
	default:
		return constants.CompanyUnclassified
	}
}
