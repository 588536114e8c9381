// internal/autofix/region.go
package autofix

import (
	"regexp"
	"strings"
)

var rejectedRegionRegex = regexp.MustCompile(`(?i)"([a-z0-9 _-]+)" was not found in the list of supported`)

// regionFiles are the files searched, in order, for the rejected region literal.
var regionFiles = []string{"variables.tf", "main.tf", "terraform.tfvars", "locals.tf"}

// ExtractRejectedRegion returns the region literal the provider rejected.
func ExtractRejectedRegion(log string) string {
	m := rejectedRegionRegex.FindStringSubmatch(log)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// CorrectRegion derives a canonical region name by dropping separators and
// lower-casing, e.g. "East-US" becomes "eastus".
func CorrectRegion(rejected string) string {
	r := strings.NewReplacer("-", "", "_", "", " ", "")
	return strings.ToLower(r.Replace(rejected))
}

// substituteRegion replaces every quoted occurrence of rejected with corrected.
// ok is false if the quoted literal does not appear verbatim.
func substituteRegion(source, rejected, corrected string) (string, bool) {
	literal := `"` + rejected + `"`
	if !strings.Contains(source, literal) {
		return "", false
	}
	return strings.ReplaceAll(source, literal, `"`+corrected+`"`), true
}
