// The package used for reading managed class descriptions out of ECMA-335 assemblies.
package metadata

import (
	"bytes"
	"debug/pe"
	"fmt"
	"io"
	"log/slog"

	"github.com/microsoft/go-winmd"
	"github.com/microsoft/go-winmd/flags"
)

// Static bit shared by FieldAttributes and MethodAttributes.
const staticAttribute uint16 = 0x0010

// The type definition every module carries for its global members.
const moduleTypeName = "<Module>"

// The map of signature element types to the managed names understood by ResolveType.
var elementTypeNames map[flags.ElementType]string = map[flags.ElementType]string{
	flags.ElementType_VOID:    "System.Void",
	flags.ElementType_BOOLEAN: "System.Boolean",
	flags.ElementType_CHAR:    "System.Char",
	flags.ElementType_I1:      "System.SByte",
	flags.ElementType_U1:      "System.Byte",
	flags.ElementType_I2:      "System.Int16",
	flags.ElementType_U2:      "System.UInt16",
	flags.ElementType_I4:      "System.Int32",
	flags.ElementType_U4:      "System.UInt32",
	flags.ElementType_I8:      "System.Int64",
	flags.ElementType_U8:      "System.UInt64",
	flags.ElementType_R4:      "System.Single",
	flags.ElementType_R8:      "System.Double",
	flags.ElementType_I:       "System.IntPtr",
	flags.ElementType_U:       "System.UIntPtr",
	flags.ElementType_STRING:  "System.String",
	flags.ElementType_OBJECT:  "System.Object",
}

// AssemblyReader turns the type definitions of one assembly into classes.
type AssemblyReader struct {
	metadata winmd.Metadata
	logger   *slog.Logger
}

// OpenAssembly reads the assembly under given path.
func OpenAssembly(path string) (*AssemblyReader, error) {
	peFile, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open assembly %s: %w", path, err)
	}
	defer peFile.Close()

	return newAssemblyReader(peFile)
}

// ReadAssembly reads an assembly held in memory.
func ReadAssembly(data []byte) (*AssemblyReader, error) {
	return NewAssemblyReader(bytes.NewReader(data))
}

// NewAssemblyReader reads an assembly from r.
func NewAssemblyReader(r io.ReaderAt) (*AssemblyReader, error) {
	peFile, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("read assembly image: %w", err)
	}
	defer peFile.Close()

	return newAssemblyReader(peFile)
}

func newAssemblyReader(peFile *pe.File) (*AssemblyReader, error) {
	md, err := winmd.New(peFile)
	if err != nil {
		return nil, fmt.Errorf("read assembly metadata: %w", err)
	}

	return &AssemblyReader{metadata: *md, logger: slog.New(slog.DiscardHandler)}, nil
}

// WithLogger sets the logger receiving signatures that could not be decoded.
func (reader *AssemblyReader) WithLogger(logger *slog.Logger) *AssemblyReader {
	reader.logger = logger
	return reader
}

// Classes returns every type defined by the assembly in table order.
func (reader *AssemblyReader) Classes() ([]Class, error) {
	table := reader.metadata.Tables.TypeDef
	classes := make([]Class, 0, table.Len)
	for idx := uint32(0); idx < table.Len; idx++ {
		typeDef, err := table.Record(winmd.Index(idx))
		if err != nil {
			return nil, fmt.Errorf("type definition %d: %w", idx, err)
		}
		if typeDef.Name.String() == moduleTypeName {
			continue
		}

		class, err := reader.getClass(typeDef)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", typeDef.Name.String(), err)
		}
		classes = append(classes, class)
	}

	return classes, nil
}

func (reader *AssemblyReader) getClass(typeDef *winmd.TypeDef) (Class, error) {
	class := Class{
		Namespace: ParseNamespace(typeDef.Namespace.String()),
		Name:      typeDef.Name.String(),
	}

	for i := typeDef.FieldList.Start; i < typeDef.FieldList.End; i++ {
		field, err := reader.metadata.Tables.Field.Record(i)
		if err != nil {
			return Class{}, fmt.Errorf("no matching field was found: %w", err)
		}
		// Static fields live in the class storage, not in the object.
		if uint16(field.Flags)&staticAttribute != 0 {
			continue
		}

		// Signatures the decoder cannot read, such as arrays and generic
		// instances, still occupy a slot in the object.
		fieldType := Unknown
		fieldSignature, err := reader.metadata.FieldSignature(field.Signature)
		if err != nil {
			reader.logger.Debug("undecodable field signature",
				"class", class.FullName(), "field", field.Name.String(), "error", err)
		} else {
			fieldType = ResolveType(reader.typeName(fieldSignature.Type))
		}
		class.Fields.Add(Variable{Type: fieldType, Name: field.Name.String()})
	}

	for i := typeDef.MethodList.Start; i < typeDef.MethodList.End; i++ {
		methodDef, err := reader.metadata.Tables.MethodDef.Record(i)
		if err != nil {
			return Class{}, fmt.Errorf("no matching method was found: %w", err)
		}
		method, err := reader.getMethod(&class, methodDef)
		if err != nil {
			return Class{}, err
		}
		class.Methods.Add(method)
	}

	return class, nil
}

func (reader *AssemblyReader) getMethod(class *Class, methodDef *winmd.MethodDef) (Method, error) {
	paramNames := make(map[int]string)
	paramCount := 0
	for i := methodDef.ParamList.Start; i < methodDef.ParamList.End; i++ {
		param, err := reader.metadata.Tables.Param.Record(i)
		if err != nil {
			return Method{}, fmt.Errorf("no matching parameter for method '%s' was found: %w", methodDef.Name.String(), err)
		}
		// Sequence 0 describes the return value.
		sequence := int(param.Sequence)
		paramNames[sequence] = param.Name.String()
		paramCount = max(paramCount, sequence)
	}

	method := Method{
		ReturnType: Unknown,
		Name:       methodDef.Name.String(),
		This:       uint16(methodDef.Flags)&staticAttribute == 0,
	}

	methodSignature, err := reader.metadata.MethodDefSignature(methodDef.Signature)
	if err != nil {
		// Keep the method with what the Param table tells about it.
		reader.logger.Debug("undecodable method signature",
			"class", class.FullName(), "method", method.Name, "error", err)
		method.Args = methodArgs(make([]LogicalType, paramCount), paramNames)
		return method, nil
	}

	argTypes := make([]LogicalType, len(methodSignature.Param))
	for i, param := range methodSignature.Param {
		argTypes[i] = ResolveType(reader.typeName(param.Type))
	}
	method.ReturnType = ResolveType(reader.typeName(methodSignature.RetType.Type))
	method.Args = methodArgs(argTypes, paramNames)
	return method, nil
}

// Gets the managed name of a signature type. Types that are neither
// primitives nor resolvable references yield an empty name.
func (reader *AssemblyReader) typeName(sigType winmd.SigType) string {
	if name, found := elementTypeNames[sigType.Kind]; found {
		return name
	}

	if sigType.Kind != flags.ElementType_CLASS && sigType.Kind != flags.ElementType_VALUETYPE {
		return ""
	}

	index, ok := sigType.Value.(winmd.CodedIndex)
	if !ok {
		return ""
	}

	// TypeDefOrRef coded index: 0 is a TypeDef, 1 a TypeRef, 2 a TypeSpec.
	switch index.Tag {
	case 0:
		typeDef, err := reader.metadata.Tables.TypeDef.Record(index.Index)
		if err != nil {
			return ""
		}
		return qualifiedName(typeDef.Namespace.String(), typeDef.Name.String())
	case 1:
		typeRef, err := reader.metadata.Tables.TypeRef.Record(index.Index)
		if err != nil {
			return ""
		}
		return qualifiedName(typeRef.Namespace.String(), typeRef.Name.String())
	default:
		return ""
	}
}

func qualifiedName(namespace, name string) string {
	if namespace == "" {
		return name
	}

	return namespace + "." + name
}

// Pairs signature argument types with names from the Param table, where
// argument i has sequence i+1. Unnamed arguments become argN.
func methodArgs(types []LogicalType, names map[int]string) []Variable {
	args := make([]Variable, len(types))
	for i, t := range types {
		name := names[i+1]
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		args[i] = Variable{Type: t, Name: name}
	}

	return args
}
