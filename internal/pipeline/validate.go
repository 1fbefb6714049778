package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"rosterparse/internal"
	"rosterparse/internal/util"
)

var (
	reTaxonomyCode = regexp.MustCompile(`^[12]\d{2}[A-Z]\d{5}X$`)
	reLicenseForm  = regexp.MustCompile(`^[A-Z]{1,3}\s?-?\s?\d{4,8}$`)
	reCodeLike     = regexp.MustCompile(`^[A-Z0-9]{6,12}$`)
	reNumericDate  = regexp.MustCompile(`^(\d{1,4})[/\-.](\d{1,2})[/\-.](\d{2,4})$`)
)

var monthNames = map[string]int{
	"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sep": 9, "sept": 9,
	"october": 10, "oct": 10, "november": 11, "nov": 11, "december": 12, "dec": 12,
}

// Validator checks and canonicalizes fused fields in place. It never fills
// in values extraction missed and never drops a value it cannot verify; a
// failed check marks the field invalid with the original value retained.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) Validate(fields map[internal.Field]internal.FusedField) {
	dayFirst := sectionPrefersDayFirst(fields)

	for field, fused := range fields {
		if fused.Value == "" {
			continue
		}
		switch field {
		case internal.FieldProviderNPI, internal.FieldGroupNPI:
			fields[field] = validateNPI(fused)
		case internal.FieldTIN:
			fields[field] = validateTIN(fused)
		case internal.FieldPhone, internal.FieldFax:
			fields[field] = validatePhone(fused)
		case internal.FieldSpecialty:
			fields[field] = validateSpecialty(fused)
		case internal.FieldLicense:
			fields[field] = validateLicense(fused)
		case internal.FieldEffectiveDate, internal.FieldTermDate:
			fields[field] = validateDate(fused, dayFirst)
		}
	}

	v.crossField(fields)
}

// crossField applies checks that need more than one field at once.
func (v *Validator) crossField(fields map[internal.Field]internal.FusedField) {
	// A term date on a non-termination is suspicious either way; keep both
	// values but weaken the type call.
	if tx, ok := fields[internal.FieldTransactionType]; ok && tx.Value != "" {
		term := fields[internal.FieldTermDate]
		if term.Value != "" && tx.Value != string(internal.TxTerm) {
			tx.Confidence *= 0.7
			fields[internal.FieldTransactionType] = tx
		}
	}

	// A group NPI equal to the individual NPI is a copy mistake, not a real
	// type 2 NPI.
	provider := fields[internal.FieldProviderNPI]
	group := fields[internal.FieldGroupNPI]
	if provider.Value != "" && group.Value != "" &&
		util.DigitsOnly(provider.Value) == util.DigitsOnly(group.Value) {
		group.Status = internal.StatusInvalid
		fields[internal.FieldGroupNPI] = group
	}
}

func validateNPI(fused internal.FusedField) internal.FusedField {
	digits := util.DigitsOnly(fused.Value)
	if len(digits) != 10 {
		fused.Status = internal.StatusUnchecked
		return fused
	}
	fused.Value = digits
	if util.ValidNPI(digits) {
		fused.Status = internal.StatusValid
	} else {
		fused.Status = internal.StatusInvalid
		fused.Confidence = 0
	}
	return fused
}

func validateTIN(fused internal.FusedField) internal.FusedField {
	digits := util.DigitsOnly(fused.Value)
	if len(digits) != 9 {
		fused.Status = internal.StatusInvalid
		return fused
	}
	fused.Value = digits[:2] + "-" + digits[2:]
	fused.Status = internal.StatusValid
	return fused
}

func validatePhone(fused internal.FusedField) internal.FusedField {
	digits := util.DigitsOnly(fused.Value)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		fused.Status = internal.StatusInvalid
		return fused
	}
	fused.Value = digits[:3] + "-" + digits[3:6] + "-" + digits[6:]
	fused.Status = internal.StatusValid
	return fused
}

// validateSpecialty only judges values that look like taxonomy codes. Free
// text specialties ("Cardiology") stay unchecked; there is no authoritative
// list to check them against here.
func validateSpecialty(fused internal.FusedField) internal.FusedField {
	value := strings.ToUpper(strings.TrimSpace(fused.Value))
	if !reCodeLike.MatchString(value) || !strings.ContainsAny(value, "0123456789") {
		fused.Status = internal.StatusUnchecked
		return fused
	}
	if reTaxonomyCode.MatchString(value) {
		fused.Value = value
		fused.Status = internal.StatusValid
	} else {
		fused.Status = internal.StatusInvalid
	}
	return fused
}

func validateLicense(fused internal.FusedField) internal.FusedField {
	if reLicenseForm.MatchString(strings.ToUpper(strings.TrimSpace(fused.Value))) {
		fused.Status = internal.StatusValid
	} else {
		fused.Status = internal.StatusUnchecked
	}
	return fused
}

func validateDate(fused internal.FusedField, dayFirst bool) internal.FusedField {
	canonical, ok := canonicalDate(fused.Value, dayFirst)
	if !ok {
		fused.Status = internal.StatusInvalid
		return fused
	}
	fused.Value = canonical
	fused.Status = internal.StatusValid
	return fused
}

// sectionPrefersDayFirst scans every date-like value in the section. If any
// of them has a first component over 12 the whole section is read day-first,
// so 03/04/2026 in that section means April 3rd.
func sectionPrefersDayFirst(fields map[internal.Field]internal.FusedField) bool {
	for _, field := range []internal.Field{internal.FieldEffectiveDate, internal.FieldTermDate} {
		fused, ok := fields[field]
		if !ok || fused.Value == "" {
			continue
		}
		m := reNumericDate.FindStringSubmatch(strings.TrimSpace(fused.Value))
		if m == nil || len(m[1]) == 4 {
			continue
		}
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		if first > 12 && second <= 12 {
			return true
		}
	}
	return false
}

// canonicalDate renders any supported date spelling as MM/DD/YYYY.
func canonicalDate(value string, dayFirst bool) (string, bool) {
	value = strings.TrimSpace(value)

	if m := reNumericDate.FindStringSubmatch(value); m != nil {
		return canonicalNumericDate(m, dayFirst)
	}

	for _, layout := range []string{"January 2, 2006", "January 2 2006", "Jan 2, 2006", "Jan 2 2006", "2 January 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("01/02/2006"), true
		}
	}
	// Month-name spellings time.Parse is picky about, e.g. "Sept 1, 2026".
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) == 3 {
		if month, ok := monthNames[strings.ToLower(parts[0])]; ok {
			return assembleDate(month, atoi(parts[1]), atoi(parts[2]))
		}
		if month, ok := monthNames[strings.ToLower(parts[1])]; ok {
			return assembleDate(month, atoi(parts[0]), atoi(parts[2]))
		}
	}
	return "", false
}

func canonicalNumericDate(m []string, dayFirst bool) (string, bool) {
	a, b, c := atoi(m[1]), atoi(m[2]), atoi(m[3])

	// ISO: year leads.
	if len(m[1]) == 4 {
		return assembleDate(b, c, a)
	}

	year := c
	if len(m[3]) == 2 {
		year += 2000
	}
	month, day := a, b
	if dayFirst || (a > 12 && b <= 12) {
		month, day = b, a
	}
	return assembleDate(month, day, year)
}

func assembleDate(month, day, year int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2100 {
		return "", false
	}
	// Round-trip through time to reject impossible days like 02/30.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d/%04d", month, day, year), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
