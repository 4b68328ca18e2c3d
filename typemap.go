package mongoferry

import (
	"fmt"
	"strings"
)

// defaultTypeMap maps catalog-reported native types to target types.
// Native types missing from the table default to string, which is always
// representable.
var defaultTypeMap = map[string]TargetType{
	// integer family
	"int":       TypeInt32,
	"integer":   TypeInt32,
	"smallint":  TypeInt32,
	"mediumint": TypeInt32,
	"bigint":    TypeInt64,
	"tinyint":   TypeBool,
	"bit":       TypeBool,
	"boolean":   TypeBool,
	"bool":      TypeBool,
	// fractional family
	"decimal":  TypeDecimal,
	"numeric":  TypeDecimal,
	"money":    TypeDecimal,
	"float":    TypeFloat,
	"double":   TypeFloat,
	"real":     TypeFloat,
	// textual family
	"varchar":    TypeString,
	"nvarchar":   TypeString,
	"char":       TypeString,
	"nchar":      TypeString,
	"text":       TypeString,
	"ntext":      TypeString,
	"tinytext":   TypeString,
	"mediumtext": TypeString,
	"longtext":   TypeString,
	// temporal family
	"date":          TypeDate,
	"datetime":      TypeDateTime,
	"datetime2":     TypeDateTime,
	"smalldatetime": TypeDateTime,
	"timestamp":     TypeDateTime,
	"timestamptz":   TypeDateTime,
	// structured
	"json":  TypeDict,
	"jsonb": TypeDict,
}

// DefaultTypeFor returns the target type a native column type maps to when
// the operator supplies no override. The lookup is case-insensitive;
// unrecognized native types map to string.
func DefaultTypeFor(nativeType string) TargetType {
	if t, ok := defaultTypeMap[strings.ToLower(strings.TrimSpace(nativeType))]; ok {
		return t
	}
	return TypeString
}

// FieldOverride carries the operator's per-column choices: an optional
// rename and an optional target type replacing the default.
type FieldOverride struct {
	Rename string
	Type   TargetType
}

// ResolveMapping applies operator overrides on top of the default type map
// and returns one FieldMapping per input column, in column order.
//
// It fails with *DuplicateTargetNameError when two columns resolve to the
// same target name, and with *ConfigurationError on empty input, overrides
// for unknown columns, or invalid override types. The returned mapping is
// fixed for the duration of a migration run.
func ResolveMapping(columns []Column, overrides map[string]FieldOverride) ([]FieldMapping, error) {
	if len(columns) == 0 {
		return nil, &ConfigurationError{Reason: "no columns to map (empty table selection?)"}
	}

	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c.Name] = true
	}
	for col, ov := range overrides {
		if !known[col] {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("override for unknown column %q", col)}
		}
		if ov.Type != "" && !ov.Type.Valid() {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("column %q: unknown target type %q", col, ov.Type)}
		}
	}

	mapping := make([]FieldMapping, 0, len(columns))
	seen := make(map[string]string, len(columns)) // target name → first source column
	for _, c := range columns {
		fm := FieldMapping{
			SourceColumn: c.Name,
			TargetName:   c.Name,
			TargetType:   DefaultTypeFor(c.DataType),
		}
		if ov, ok := overrides[c.Name]; ok {
			if ov.Rename != "" {
				fm.TargetName = ov.Rename
			}
			if ov.Type != "" {
				fm.TargetType = ov.Type
			}
		}
		if fm.TargetName == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("column %q resolves to an empty target name", c.Name)}
		}
		if first, dup := seen[fm.TargetName]; dup {
			return nil, &DuplicateTargetNameError{
				TargetName: fm.TargetName,
				Columns:    []string{first, c.Name},
			}
		}
		seen[fm.TargetName] = c.Name
		mapping = append(mapping, fm)
	}
	return mapping, nil
}
