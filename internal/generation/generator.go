package generation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"il2cppgen/internal/metadata"

	"github.com/dave/jennifer/jen"
)

// Emitter renders classes into Go declarations: a fields struct, a wrapper
// struct and a conversion function from an object pointer to the wrapper.
// Emission is pure, so one Emitter may be shared between goroutines.
//
// Methods carried by a class are not rendered. Call trampolines built from
// metadata.Method signatures would be added as a fourth declaration here.
type Emitter struct {
	mapper TypeMapper
}

func NewEmitter(mapper TypeMapper) *Emitter {
	return &Emitter{mapper: mapper}
}

// Emit renders the declarations of one class without a package clause.
func (emitter *Emitter) Emit(class *metadata.Class) string {
	return fmt.Sprintf("%#v", emitter.Code(class))
}

// Code returns the declarations of one class as a single statement.
func (emitter *Emitter) Code(class *metadata.Class) *jen.Statement {
	statement := jen.Null()
	for i, decl := range emitter.declarations(NewLayout(class)) {
		if i > 0 {
			statement.Line().Line()
		}
		statement.Add(decl)
	}

	return statement
}

// EmitFile renders a complete Go file holding the given classes ordered by full name.
func (emitter *Emitter) EmitFile(packageName string, classes []metadata.Class) *jen.File {
	ordered := make([]metadata.Class, len(classes))
	for i := range classes {
		ordered[i] = classes[i].Clone()
	}
	slices.SortFunc(ordered, func(a, b metadata.Class) int {
		return strings.Compare(a.FullName(), b.FullName())
	})

	file := jen.NewFile(packageName)
	file.HeaderComment("Code generated by il2cppgen. DO NOT EDIT.")
	for i := range ordered {
		for _, decl := range emitter.declarations(NewLayout(&ordered[i])) {
			file.Add(decl)
			file.Line()
		}
	}

	return file
}

func (emitter *Emitter) declarations(layout Layout) []jen.Code {
	return []jen.Code{
		emitter.fieldsStruct(layout),
		emitter.wrapperStruct(layout),
		emitter.converter(layout),
	}
}

func (emitter *Emitter) fieldsStruct(layout Layout) jen.Code {
	return jen.
		Commentf("%s mirrors the instance field layout of %s.", layout.FieldsName, layout.displayName()).
		Line().
		Type().
		Id(layout.FieldsName).
		StructFunc(func(g *jen.Group) {
			// Raises the struct alignment to 8 bytes on 64-bit targets.
			g.Id("_").Index(jen.Lit(0)).Uint64()
			for _, member := range layout.Members {
				g.Id(member.GoName).Add(emitter.mapper.Native(member.Field.Type))
			}
		})
}

func (emitter *Emitter) wrapperStruct(layout Layout) jen.Code {
	return jen.
		Commentf("%s is a non-owning view of a managed %s object.", layout.WrapperName, layout.displayName()).
		Line().
		Comment("Fields stays nil until the field values are read.").
		Line().
		Type().
		Id(layout.WrapperName).
		Struct(
			jen.Id("Object").Add(emitter.mapper.ObjectPointer()),
			jen.Id("Class").Add(emitter.mapper.ClassPointer()),
			jen.Id("Fields").Op("*").Id(layout.FieldsName),
		)
}

func (emitter *Emitter) converter(layout Layout) jen.Code {
	return jen.
		Commentf("%s wraps obj after resolving the %s runtime class.", layout.ConverterName, layout.displayName()).
		Line().
		Func().
		Id(layout.ConverterName).
		Params(jen.Id("obj").Add(emitter.mapper.ObjectPointer())).
		Params(jen.Id(layout.WrapperName), jen.Error()).
		Block(
			jen.List(jen.Id("class"), jen.Err()).Op(":=").
				Qual(emitter.mapper.RuntimePackage, "GetClassFromName").
				Call(jen.Lit(layout.LookupNamespace), jen.Lit(layout.LookupName)),
			jen.If(jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Id(layout.WrapperName).Values(), jen.Err()),
			),
			jen.Return(
				jen.Id(layout.WrapperName).Values(
					jen.Id("Object").Op(":").Id("obj"),
					jen.Id("Class").Op(":").Id("class"),
				),
				jen.Nil(),
			),
		)
}

func (layout Layout) displayName() string {
	if layout.LookupNamespace == "" {
		return layout.LookupName
	}

	return layout.LookupNamespace + "." + layout.LookupName
}

// Generator collects classes and writes them as Go files of one package.
type Generator struct {
	PackageName string
	OutputPath  string
	SingleFile  bool
	emitter     *Emitter
	classes     map[string]metadata.Class
	reserved    map[string]string
	logger      *slog.Logger
}

// Suffix of every generated file name. It keeps names clear of the go
// tool's _test, _GOOS and _GOARCH file name rules.
const fileSuffix = "_il2cpp.go"

func NewGenerator(packageName string, outputPath string, emitter *Emitter, logger *slog.Logger) *Generator {
	return &Generator{
		PackageName: packageName,
		OutputPath:  outputPath,
		emitter:     emitter,
		classes:     make(map[string]metadata.Class),
		reserved:    make(map[string]string),
		logger:      logger,
	}
}

// RegisterClass queues a copy of class for generation. Each class declares
// three package level identifiers; a class reusing any identifier already
// declared by another class is dropped.
func (generator *Generator) RegisterClass(class metadata.Class) bool {
	name := ExportedName(class.Name)
	identifiers := []string{name, name + "Fields", name + "FromObject"}
	for _, identifier := range identifiers {
		if owner, found := generator.reserved[identifier]; found {
			generator.logger.Warn("skipping class with duplicate Go name",
				"class", class.FullName(), "conflictsWith", owner, "goName", identifier)
			return false
		}
	}

	for _, identifier := range identifiers {
		generator.reserved[identifier] = class.FullName()
	}
	generator.classes[name] = class.Clone()
	generator.logger.Debug("registered class", "class", class.FullName(),
		"fields", class.Fields.Len(), "methods", class.Methods.Len())
	return true
}

// Generate writes every registered class and returns the written file paths.
func (generator *Generator) Generate() ([]string, error) {
	if err := os.MkdirAll(generator.OutputPath, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	names := make([]string, 0, len(generator.classes))
	for name := range generator.classes {
		names = append(names, name)
	}
	slices.Sort(names)

	if generator.SingleFile {
		classes := make([]metadata.Class, 0, len(names))
		for _, name := range names {
			classes = append(classes, generator.classes[name])
		}
		path := filepath.Join(generator.OutputPath, generator.PackageName+fileSuffix)
		if err := generator.save(path, classes); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(generator.OutputPath, name+fileSuffix)
		if err := generator.save(path, []metadata.Class{generator.classes[name]}); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func (generator *Generator) save(path string, classes []metadata.Class) error {
	file := generator.emitter.EmitFile(generator.PackageName, classes)
	if err := file.Save(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	generator.logger.Info("generated file", "path", path, "classes", len(classes))
	return nil
}
