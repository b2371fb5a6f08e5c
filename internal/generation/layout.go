package generation

import (
	"fmt"
	"strings"
	"unicode"

	"il2cppgen/internal/metadata"
)

// Member is one field of a generated fields struct.
type Member struct {
	GoName string
	Field  metadata.Variable
}

// Layout is everything the renderer needs to know about one class.
type Layout struct {
	FieldsName      string
	WrapperName     string
	ConverterName   string
	LookupNamespace string
	LookupName      string
	Members         []Member
}

// NewLayout derives the layout of a class. Members follow the field set's
// sorted order: by field name, then by logical type.
func NewLayout(class *metadata.Class) Layout {
	wrapperName := ExportedName(class.Name)
	layout := Layout{
		FieldsName:      wrapperName + "Fields",
		WrapperName:     wrapperName,
		ConverterName:   wrapperName + "FromObject",
		LookupNamespace: class.Namespace.String(),
		LookupName:      class.Name,
	}

	fields := class.Fields.Sorted()
	taken := make(map[string]bool, len(fields))
	layout.Members = make([]Member, 0, len(fields))
	for _, field := range fields {
		base := ExportedName(field.Name)
		name := base
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[name] = true
		layout.Members = append(layout.Members, Member{GoName: name, Field: field})
	}

	return layout
}

// ExportedName turns a managed identifier into an exported Go identifier.
// Auto-property backing fields such as `<Name>k__BackingField` use the
// property name.
func ExportedName(name string) string {
	if strings.HasPrefix(name, "<") {
		if end := strings.Index(name, ">k__BackingField"); end > 1 {
			name = name[1:end]
		}
	}

	var builder strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			builder.WriteRune(r)
		} else {
			builder.WriteRune('_')
		}
	}

	sanitized := strings.TrimLeft(builder.String(), "_")
	if sanitized == "" {
		return "X" + builder.String()
	}

	runes := []rune(sanitized)
	runes[0] = unicode.ToUpper(runes[0])
	if !unicode.IsUpper(runes[0]) {
		return "X" + sanitized
	}

	return string(runes)
}
