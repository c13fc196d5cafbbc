package actors

import "strings"

// Keywords that historically marked an account as belonging to the OPD unit.
// Older accounts encoded their unit only in the free-text position field; the
// stored department column is backfilled from it once by the migration script.
var opdKeywords = []string{"OPD", "outpatient", "ผู้ป่วยนอก"}

var adminKeywords = []string{"admin", "administrator", "ผู้ดูแลระบบ"}

// DeriveLegacyDepartment maps a free-text position to a department. Accounts
// with no recognisable keyword default to the pharmacy, matching how the data
// was entered before departments became a stored attribute. Used only by the
// one-shot backfill, never on the request path.
func DeriveLegacyDepartment(position string) Department {
	lower := strings.ToLower(position)
	for _, kw := range opdKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return DeptOPD
		}
	}
	return DeptPharmacy
}

// DeriveLegacyAdmin reports whether a legacy position marks an administrator.
func DeriveLegacyAdmin(position string) bool {
	lower := strings.ToLower(position)
	for _, kw := range adminKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
