package utils

import "strings"

// NormalizePhoneKE rewrites local Kenyan numbers (07.., 01.., +254..) into the
// 2547XXXXXXXX form the M-Pesa API expects. Anything else is returned trimmed.
func NormalizePhoneKE(phone string) string {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")

	switch {
	case strings.HasPrefix(p, "254"):
		return p
	case strings.HasPrefix(p, "0") && len(p) == 10:
		return "254" + p[1:]
	case (strings.HasPrefix(p, "7") || strings.HasPrefix(p, "1")) && len(p) == 9:
		return "254" + p
	}
	return p
}
