package generation

import (
	"il2cppgen/internal/metadata"

	"github.com/dave/jennifer/jen"
)

// DefaultRuntimePackage is the import path of the runtime contract used by generated code.
const DefaultRuntimePackage string = "il2cppgen/il2cpp"

// The map of logical value types to Go equivalents. Widths and signedness are exact.
var builtInValueTypes map[metadata.LogicalType]func() *jen.Statement = map[metadata.LogicalType]func() *jen.Statement{
	metadata.I8:    jen.Int8,
	metadata.U8:    jen.Uint8,
	metadata.I16:   jen.Int16,
	metadata.U16:   jen.Uint16,
	metadata.I32:   jen.Int32,
	metadata.U32:   jen.Uint32,
	metadata.I64:   jen.Int64,
	metadata.U64:   jen.Uint64,
	metadata.ISize: jen.Int,
	metadata.USize: jen.Uint,
	metadata.F32:   jen.Float32,
	metadata.F64:   jen.Float64,
}

// TypeMapper maps logical types to their Go representation.
type TypeMapper struct {
	RuntimePackage string
}

func NewTypeMapper(runtimePackage string) TypeMapper {
	if runtimePackage == "" {
		runtimePackage = DefaultRuntimePackage
	}

	return TypeMapper{RuntimePackage: runtimePackage}
}

// Native returns the type expression for t. Managed strings and objects
// become non-owning pointers to the runtime's opaque types; unknown types
// become unsafe.Pointer, a pointer-sized slot of unknown shape.
func (mapper TypeMapper) Native(t metadata.LogicalType) *jen.Statement {
	if valueType, found := builtInValueTypes[t]; found {
		return valueType()
	}

	switch t {
	case metadata.Unit:
		return jen.Struct()
	case metadata.String:
		return mapper.runtimePointer("String")
	case metadata.Object:
		return mapper.runtimePointer("Object")
	default:
		return jen.Qual("unsafe", "Pointer")
	}
}

// ObjectPointer is the type of the wrapper's object member.
func (mapper TypeMapper) ObjectPointer() *jen.Statement {
	return mapper.runtimePointer("Object")
}

// ClassPointer is the type of the wrapper's class member.
func (mapper TypeMapper) ClassPointer() *jen.Statement {
	return mapper.runtimePointer("Class")
}

func (mapper TypeMapper) runtimePointer(name string) *jen.Statement {
	return jen.Op("*").Qual(mapper.RuntimePackage, name)
}
