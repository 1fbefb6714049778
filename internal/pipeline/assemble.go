package pipeline

import (
	"rosterparse/internal"
)

// Assemble builds the terminal Transaction for one section from its
// validated fields. The transaction type comes from the fused field when
// extraction produced one, falling back to the sectioner's hint.
func Assemble(section internal.Section, fields map[internal.Field]internal.FusedField) internal.Transaction {
	tx := internal.Transaction{
		SectionIndex: section.Index,
		Type:         internal.TxUnknown,
		Fields:       fields,
	}

	if fused, ok := fields[internal.FieldTransactionType]; ok && fused.Value != "" {
		tx.Type = parseTransactionType(fused.Value)
	}
	if tx.Type == internal.TxUnknown && section.Hint != "" {
		tx.Type = section.Hint
	}

	for _, fused := range fields {
		if fused.Value == "" {
			continue
		}
		tx.FieldsFound++
		if fused.Status == internal.StatusValid {
			tx.FieldsValid++
		}
	}
	return tx
}

func parseTransactionType(value string) internal.TransactionType {
	switch internal.TransactionType(value) {
	case internal.TxAdd, internal.TxUpdate, internal.TxTerm:
		return internal.TransactionType(value)
	}
	return internal.TxUnknown
}
