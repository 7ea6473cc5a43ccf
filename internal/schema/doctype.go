package schema

import (
	"fmt"
	"slices"
	"strings"
)

// DocumentType is the closed set of filing document kinds. The zero value
// is DocumentTypeUnknown.
type DocumentType int

const (
	DocumentTypeUnknown DocumentType = iota
	DocumentTypeArticlesOfAssociation
	DocumentTypeMemorandumOfAssociation
	DocumentTypeBoardResolution
	DocumentTypeShareholderResolution
	DocumentTypeRegistrationForm
	DocumentTypeRegisterOfMembers
	DocumentTypeRegisterOfDirectors
	DocumentTypeUBODeclaration
	DocumentTypeChangeOfAddressNotice

	documentTypeCount
)

var documentTypeNames = [documentTypeCount]struct {
	key   string
	label string
}{
	DocumentTypeUnknown:                 {"unknown", "Unknown"},
	DocumentTypeArticlesOfAssociation:   {"articles_of_association", "Articles of Association"},
	DocumentTypeMemorandumOfAssociation: {"memorandum_of_association", "Memorandum of Association"},
	DocumentTypeBoardResolution:         {"board_resolution", "Board Resolution"},
	DocumentTypeShareholderResolution:   {"shareholder_resolution", "Shareholder Resolution"},
	DocumentTypeRegistrationForm:        {"registration_form", "Incorporation Application Form"},
	DocumentTypeRegisterOfMembers:       {"register_of_members", "Register of Members"},
	DocumentTypeRegisterOfDirectors:     {"register_of_directors", "Register of Directors"},
	DocumentTypeUBODeclaration:          {"ubo_declaration", "UBO Declaration Form"},
	DocumentTypeChangeOfAddressNotice:   {"change_of_address_notice", "Change of Registered Address Notice"},
}

// DocumentTypes returns every known type, excluding Unknown, in declaration order.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, 0, documentTypeCount-1)
	for t := DocumentTypeUnknown + 1; t < documentTypeCount; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a member of the closed set (Unknown included).
func (t DocumentType) Valid() bool { return t >= DocumentTypeUnknown && t < documentTypeCount }

// String returns the stable key, e.g. "board_resolution".
func (t DocumentType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("document_type(%d)", int(t))
	}
	return documentTypeNames[t].key
}

// Label returns the human-readable name.
func (t DocumentType) Label() string {
	if !t.Valid() {
		return t.String()
	}
	return documentTypeNames[t].label
}

// MarshalText encodes the type as its stable key.
func (t DocumentType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid document type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a stable key or label.
func (t *DocumentType) UnmarshalText(b []byte) error {
	v, err := ParseDocumentType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseDocumentType accepts either the stable key or the label, case-insensitively.
func ParseDocumentType(s string) (DocumentType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for t := DocumentTypeUnknown; t < documentTypeCount; t++ {
		if norm == documentTypeNames[t].key || norm == strings.ToLower(documentTypeNames[t].label) {
			return t, nil
		}
	}
	return DocumentTypeUnknown, fmt.Errorf("unknown document type %q", s)
}

// SortTypes orders types by declaration order.
func SortTypes(ts []DocumentType) { slices.Sort(ts) }
