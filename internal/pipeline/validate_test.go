package pipeline

import (
	"testing"

	"rosterparse/internal"
)

func fusedFields(pairs map[internal.Field]string) map[internal.Field]internal.FusedField {
	fields := map[internal.Field]internal.FusedField{}
	for field, value := range pairs {
		fields[field] = internal.FusedField{Field: field, Value: value, Confidence: 0.9, Status: internal.StatusUnchecked}
	}
	return fields
}

func TestValidateNPI(t *testing.T) {
	v := NewValidator()

	fields := fusedFields(map[internal.Field]string{internal.FieldProviderNPI: "1234567893"})
	v.Validate(fields)
	if got := fields[internal.FieldProviderNPI]; got.Status != internal.StatusValid {
		t.Fatalf("valid NPI: %+v", got)
	}

	fields = fusedFields(map[internal.Field]string{internal.FieldProviderNPI: "1234567890"})
	v.Validate(fields)
	got := fields[internal.FieldProviderNPI]
	if got.Status != internal.StatusInvalid || got.Confidence != 0 {
		t.Fatalf("checksum failure: %+v", got)
	}
	if got.Value != "1234567890" {
		t.Fatalf("invalid value dropped: %+v", got)
	}

	fields = fusedFields(map[internal.Field]string{internal.FieldProviderNPI: "12345"})
	v.Validate(fields)
	if got := fields[internal.FieldProviderNPI]; got.Status != internal.StatusUnchecked {
		t.Fatalf("short NPI should stay unchecked: %+v", got)
	}
}

func TestValidateTIN(t *testing.T) {
	v := NewValidator()

	fields := fusedFields(map[internal.Field]string{internal.FieldTIN: "123456789"})
	v.Validate(fields)
	got := fields[internal.FieldTIN]
	if got.Status != internal.StatusValid || got.Value != "12-3456789" {
		t.Fatalf("TIN: %+v", got)
	}

	fields = fusedFields(map[internal.Field]string{internal.FieldTIN: "12-34567"})
	v.Validate(fields)
	if got := fields[internal.FieldTIN]; got.Status != internal.StatusInvalid {
		t.Fatalf("short TIN: %+v", got)
	}
}

func TestValidatePhone(t *testing.T) {
	v := NewValidator()

	fields := fusedFields(map[internal.Field]string{internal.FieldPhone: "(555) 123-4567"})
	v.Validate(fields)
	got := fields[internal.FieldPhone]
	if got.Status != internal.StatusValid || got.Value != "555-123-4567" {
		t.Fatalf("phone: %+v", got)
	}

	// Leading country code is stripped.
	fields = fusedFields(map[internal.Field]string{internal.FieldFax: "1-555-987-6543"})
	v.Validate(fields)
	got = fields[internal.FieldFax]
	if got.Status != internal.StatusValid || got.Value != "555-987-6543" {
		t.Fatalf("fax with country code: %+v", got)
	}

	fields = fusedFields(map[internal.Field]string{internal.FieldPhone: "123-45"})
	v.Validate(fields)
	got = fields[internal.FieldPhone]
	if got.Status != internal.StatusInvalid || got.Value != "123-45" {
		t.Fatalf("bad phone must keep its value: %+v", got)
	}
}

func TestValidateSpecialty(t *testing.T) {
	v := NewValidator()

	fields := fusedFields(map[internal.Field]string{internal.FieldSpecialty: "207Q00000X"})
	v.Validate(fields)
	if got := fields[internal.FieldSpecialty]; got.Status != internal.StatusValid {
		t.Fatalf("taxonomy code: %+v", got)
	}

	// Free-text specialties are not checkable.
	fields = fusedFields(map[internal.Field]string{internal.FieldSpecialty: "Cardiology"})
	v.Validate(fields)
	if got := fields[internal.FieldSpecialty]; got.Status != internal.StatusUnchecked {
		t.Fatalf("free text specialty: %+v", got)
	}
}

func TestValidateDates(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		in   string
		want string
	}{
		{"1/5/26", "01/05/2026"},
		{"01-05-2026", "01/05/2026"},
		{"2026-01-05", "01/05/2026"},
		{"January 5, 2026", "01/05/2026"},
		{"5 Jan 2026", "01/05/2026"},
		{"Sept 1, 2026", "09/01/2026"},
	}
	for _, c := range cases {
		fields := fusedFields(map[internal.Field]string{internal.FieldEffectiveDate: c.in})
		v.Validate(fields)
		got := fields[internal.FieldEffectiveDate]
		if got.Status != internal.StatusValid || got.Value != c.want {
			t.Errorf("date %q: %+v", c.in, got)
		}
	}

	fields := fusedFields(map[internal.Field]string{internal.FieldEffectiveDate: "02/30/2026"})
	v.Validate(fields)
	if got := fields[internal.FieldEffectiveDate]; got.Status != internal.StatusInvalid {
		t.Fatalf("impossible date: %+v", got)
	}
}

func TestValidateDayFirstDisambiguation(t *testing.T) {
	v := NewValidator()

	// The term date can only be day-first, so the whole section reads
	// day-first and 03/04 means April 3rd.
	fields := fusedFields(map[internal.Field]string{
		internal.FieldEffectiveDate: "03/04/2026",
		internal.FieldTermDate:      "25/12/2026",
	})
	v.Validate(fields)

	if got := fields[internal.FieldTermDate]; got.Value != "12/25/2026" {
		t.Fatalf("term date: %+v", got)
	}
	if got := fields[internal.FieldEffectiveDate]; got.Value != "04/03/2026" {
		t.Fatalf("effective date: %+v", got)
	}
}

func TestValidateCrossField(t *testing.T) {
	v := NewValidator()

	fields := fusedFields(map[internal.Field]string{
		internal.FieldTransactionType: "add",
		internal.FieldTermDate:        "09/30/2026",
	})
	v.Validate(fields)
	if got := fields[internal.FieldTransactionType]; got.Confidence >= 0.9 {
		t.Fatalf("term date on an add should weaken the type: %+v", got)
	}

	fields = fusedFields(map[internal.Field]string{
		internal.FieldProviderNPI: "1234567893",
		internal.FieldGroupNPI:    "1234567893",
	})
	v.Validate(fields)
	if got := fields[internal.FieldGroupNPI]; got.Status != internal.StatusInvalid {
		t.Fatalf("duplicated NPI should invalidate the group: %+v", got)
	}
}
