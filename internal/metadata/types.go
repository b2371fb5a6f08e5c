package metadata

// LogicalType is the runtime-agnostic classification of a managed type name.
type LogicalType uint8

const (
	Unknown LogicalType = iota
	I8
	U8
	I16
	U16
	I32
	U32
	I64
	U64
	ISize
	USize
	F32
	F64
	Unit
	String
	Object
)

// The map of logical types to the managed names resolving to them: keyword,
// display and fully qualified spelling. The runtime stores booleans in a
// single byte, so they resolve to U8.
var typeAliases map[LogicalType][]string = map[LogicalType][]string{
	I8:     {"sbyte", "SByte", "System.SByte"},
	U8:     {"byte", "Byte", "System.Byte", "bool", "Boolean", "System.Boolean"},
	I16:    {"short", "Int16", "System.Int16"},
	U16:    {"ushort", "UInt16", "System.UInt16", "char", "Char", "System.Char"},
	I32:    {"int", "Int32", "System.Int32"},
	U32:    {"uint", "UInt32", "System.UInt32"},
	I64:    {"long", "Int64", "System.Int64"},
	U64:    {"ulong", "UInt64", "System.UInt64"},
	F32:    {"float", "Float", "System.Float", "Single", "System.Single"},
	F64:    {"double", "Double", "System.Double"},
	ISize:  {"nint", "IntPtr", "System.IntPtr"},
	USize:  {"nuint", "UintPtr", "UIntPtr", "System.UIntPtr"},
	String: {"string", "String", "System.String"},
	Object: {"object", "Object", "System.Object"},
	Unit:   {"void", "Void", "System.Void"},
}

var typesByName map[string]LogicalType = invertAliases(typeAliases)

func invertAliases(aliases map[LogicalType][]string) map[string]LogicalType {
	byName := make(map[string]LogicalType)
	for t, names := range aliases {
		for _, name := range names {
			byName[name] = t
		}
	}

	return byName
}

var typeNames = [...]string{
	Unknown: "Unknown",
	I8:      "I8",
	U8:      "U8",
	I16:     "I16",
	U16:     "U16",
	I32:     "I32",
	U32:     "U32",
	I64:     "I64",
	U64:     "U64",
	ISize:   "ISize",
	USize:   "USize",
	F32:     "F32",
	F64:     "F64",
	Unit:    "Unit",
	String:  "String",
	Object:  "Object",
}

// ResolveType maps a managed type name to its logical type.
// Names are matched exactly; anything not in the alias table is Unknown.
func ResolveType(name string) LogicalType {
	if t, found := typesByName[name]; found {
		return t
	}

	return Unknown
}

// LogicalTypes returns every logical type in declaration order.
func LogicalTypes() []LogicalType {
	types := make([]LogicalType, 0, len(typeNames))
	for t := range typeNames {
		types = append(types, LogicalType(t))
	}

	return types
}

func (t LogicalType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}

	return "Unknown"
}
