package generation

import (
	"fmt"
	"go/ast"
	"go/build"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"il2cppgen/internal/metadata"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleClass() metadata.Class {
	return metadata.Class{
		Namespace: metadata.Namespace{"Example", "Namespace"},
		Name:      "ExampleClass",
		Fields: metadata.NewFieldSet(
			metadata.Variable{Type: metadata.I32, Name: "a"},
			metadata.Variable{Type: metadata.String, Name: "b"},
			metadata.Variable{Type: metadata.Unknown, Name: "c"},
		),
	}
}

func parseSource(t *testing.T, src string) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(token.NewFileSet(), "generated.go", src, parser.ParseComments)
	require.NoError(t, err, src)
	return file
}

func parseFragment(t *testing.T, src string) *ast.File {
	return parseSource(t, "package generated\n\n"+src)
}

// Returns "name type" for every member of the named struct.
func structMembers(t *testing.T, file *ast.File, name string) []string {
	t.Helper()
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		for _, spec := range gen.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok || typeSpec.Name.Name != name {
				continue
			}
			members := make([]string, 0)
			for _, field := range typeSpec.Type.(*ast.StructType).Fields.List {
				for _, ident := range field.Names {
					members = append(members, ident.Name+" "+types.ExprString(field.Type))
				}
			}
			return members
		}
	}

	t.Fatalf("struct %s not found", name)
	return nil
}

func findFunc(t *testing.T, file *ast.File, name string) *ast.FuncDecl {
	t.Helper()
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == name {
			return fn
		}
	}

	t.Fatalf("func %s not found", name)
	return nil
}

// Returns the string literal arguments of every call to fn inside decl.
func callArgs(decl ast.Node, fn string) [][]string {
	calls := make([][]string, 0)
	ast.Inspect(decl, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || types.ExprString(call.Fun) != fn {
			return true
		}
		args := make([]string, 0, len(call.Args))
		for _, arg := range call.Args {
			if lit, ok := arg.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				value, _ := strconv.Unquote(lit.Value)
				args = append(args, value)
			}
		}
		calls = append(calls, args)
		return true
	})

	return calls
}

func TestEmitExampleClass(t *testing.T) {
	class := exampleClass()
	file := parseFragment(t, NewEmitter(NewTypeMapper("")).Emit(&class))

	fields := structMembers(t, file, "ExampleClassFields")
	if diff := cmp.Diff([]string{"_ [0]uint64", "A int32", "B *il2cpp.String", "C unsafe.Pointer"}, fields); diff != "" {
		t.Errorf("fields struct mismatch (-want +got):\n%s", diff)
	}

	wrapper := structMembers(t, file, "ExampleClass")
	if diff := cmp.Diff([]string{"Object *il2cpp.Object", "Class *il2cpp.Class", "Fields *ExampleClassFields"}, wrapper); diff != "" {
		t.Errorf("wrapper struct mismatch (-want +got):\n%s", diff)
	}

	converter := findFunc(t, file, "ExampleClassFromObject")
	require.Len(t, converter.Type.Params.List, 1)
	assert.Equal(t, "*il2cpp.Object", types.ExprString(converter.Type.Params.List[0].Type))
	require.Len(t, converter.Type.Results.List, 2)
	assert.Equal(t, "ExampleClass", types.ExprString(converter.Type.Results.List[0].Type))
	assert.Equal(t, "error", types.ExprString(converter.Type.Results.List[1].Type))

	lookups := callArgs(converter, "il2cpp.GetClassFromName")
	if diff := cmp.Diff([][]string{{"Example.Namespace", "ExampleClass"}}, lookups); diff != "" {
		t.Errorf("lookup calls mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitConverterBody(t *testing.T) {
	class := exampleClass()
	out := NewEmitter(NewTypeMapper("")).Emit(&class)

	assert.Contains(t, out, `class, err := il2cpp.GetClassFromName("Example.Namespace", "ExampleClass")`)
	assert.Contains(t, out, "return ExampleClass{}, err")
	assert.Contains(t, out, "return ExampleClass{Object: obj, Class: class}, nil")
}

func TestEmitIsDeterministic(t *testing.T) {
	emitter := NewEmitter(NewTypeMapper(""))
	fields := []metadata.Variable{
		{Type: metadata.F32, Name: "speed"},
		{Type: metadata.Object, Name: "target"},
		{Type: metadata.U8, Name: "alive"},
		{Type: metadata.I64, Name: "id"},
		{Type: metadata.String, Name: "name"},
	}

	first := metadata.Class{Namespace: metadata.Namespace{"Game"}, Name: "Enemy", Fields: metadata.NewFieldSet(fields...)}
	reversed := make([]metadata.Variable, 0, len(fields))
	for i := len(fields) - 1; i >= 0; i-- {
		reversed = append(reversed, fields[i])
	}
	second := metadata.Class{Namespace: metadata.Namespace{"Game"}, Name: "Enemy", Fields: metadata.NewFieldSet(reversed...)}

	want := emitter.Emit(&first)
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, emitter.Emit(&first))
		assert.Equal(t, want, emitter.Emit(&second))
	}
}

func TestEmitEmptyClass(t *testing.T) {
	class := metadata.Class{Name: "Empty"}
	file := parseFragment(t, NewEmitter(NewTypeMapper("")).Emit(&class))

	if diff := cmp.Diff([]string{"_ [0]uint64"}, structMembers(t, file, "EmptyFields")); diff != "" {
		t.Errorf("fields struct mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, structMembers(t, file, "Empty"), 3)

	lookups := callArgs(findFunc(t, file, "EmptyFromObject"), "il2cpp.GetClassFromName")
	assert.Equal(t, [][]string{{"", "Empty"}}, lookups)
}

func TestEmitIgnoresMethods(t *testing.T) {
	emitter := NewEmitter(NewTypeMapper(""))
	plain := exampleClass()
	withMethods := exampleClass()
	withMethods.Methods = metadata.NewMethodSet(
		metadata.Method{ReturnType: metadata.Unit, Name: "Update", This: true},
		metadata.Method{ReturnType: metadata.I32, Name: "Add", Args: []metadata.Variable{{Type: metadata.I32, Name: "x"}}},
	)

	assert.Equal(t, emitter.Emit(&plain), emitter.Emit(&withMethods))
}

func TestEmitCustomRuntimePackage(t *testing.T) {
	class := exampleClass()
	file := parseFragment(t, NewEmitter(NewTypeMapper("example.com/game/rt")).Emit(&class))

	assert.Contains(t, structMembers(t, file, "ExampleClassFields"), "B *rt.String")
	assert.Len(t, callArgs(file, "rt.GetClassFromName"), 1)
}

func TestEmitFile(t *testing.T) {
	emitter := NewEmitter(NewTypeMapper(""))
	other := metadata.Class{Namespace: metadata.Namespace{"Alpha"}, Name: "Zeta"}
	classes := []metadata.Class{exampleClass(), other}

	src := fmt.Sprintf("%#v", emitter.EmitFile("game", classes))
	file := parseSource(t, src)
	assert.Equal(t, "game", file.Name.Name)
	assert.Contains(t, src, "Code generated by il2cppgen. DO NOT EDIT.")

	imports := make([]string, 0)
	for _, spec := range file.Imports {
		path, _ := strconv.Unquote(spec.Path.Value)
		imports = append(imports, path)
	}
	assert.ElementsMatch(t, []string{DefaultRuntimePackage, "unsafe"}, imports)

	funcs := make([]string, 0)
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			funcs = append(funcs, fn.Name.Name)
		}
	}
	// Alpha.Zeta sorts before Example.Namespace.ExampleClass.
	if diff := cmp.Diff([]string{"ZetaFromObject", "ExampleClassFromObject"}, funcs); diff != "" {
		t.Errorf("declaration order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, src, fmt.Sprintf("%#v", emitter.EmitFile("game", []metadata.Class{other, exampleClass()})))
}

func newTestGenerator(t *testing.T) (*Generator, string) {
	dir := filepath.Join(t.TempDir(), "out")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGenerator("game", dir, NewEmitter(NewTypeMapper("")), logger), dir
}

func TestGeneratorWritesFilePerClass(t *testing.T) {
	generator, dir := newTestGenerator(t)
	assert.True(t, generator.RegisterClass(exampleClass()))
	assert.True(t, generator.RegisterClass(metadata.Class{Name: "Program"}))

	paths, err := generator.Generate()
	require.NoError(t, err)
	if diff := cmp.Diff([]string{filepath.Join(dir, "ExampleClass_il2cpp.go"), filepath.Join(dir, "Program_il2cpp.go")}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	file := parseSource(t, string(data))
	assert.Equal(t, "game", file.Name.Name)
	findFunc(t, file, "ExampleClassFromObject")
}

func TestGeneratorSingleFile(t *testing.T) {
	generator, dir := newTestGenerator(t)
	generator.SingleFile = true
	generator.RegisterClass(exampleClass())
	generator.RegisterClass(metadata.Class{Name: "Program"})

	paths, err := generator.Generate()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "game_il2cpp.go")}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	file := parseSource(t, string(data))
	findFunc(t, file, "ExampleClassFromObject")
	findFunc(t, file, "ProgramFromObject")
}

func TestGeneratorRejectsDuplicateGoNames(t *testing.T) {
	generator, _ := newTestGenerator(t)
	assert.True(t, generator.RegisterClass(metadata.Class{Namespace: metadata.Namespace{"A"}, Name: "Player"}))
	assert.False(t, generator.RegisterClass(metadata.Class{Namespace: metadata.Namespace{"B"}, Name: "Player"}))
	assert.False(t, generator.RegisterClass(metadata.Class{Namespace: metadata.Namespace{"C"}, Name: "player"}))

	paths, err := generator.Generate()
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestGeneratorReservesEveryDeclaredIdentifier(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
	}{
		{name: "fields struct name", first: "Foo", second: "FooFields"},
		{name: "converter name", first: "Foo", second: "FooFromObject"},
		{name: "wrapper name of an earlier fields struct", first: "FooFields", second: "Foo"},
		{name: "wrapper name of an earlier converter", first: "FooFromObject", second: "Foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, _ := newTestGenerator(t)
			assert.True(t, generator.RegisterClass(metadata.Class{Name: tt.first}))
			assert.False(t, generator.RegisterClass(metadata.Class{Name: tt.second}))

			paths, err := generator.Generate()
			require.NoError(t, err)
			assert.Len(t, paths, 1)
		})
	}
}

func TestGeneratorAcceptsRelatedNames(t *testing.T) {
	generator, _ := newTestGenerator(t)
	assert.True(t, generator.RegisterClass(metadata.Class{Name: "Foo"}))
	assert.True(t, generator.RegisterClass(metadata.Class{Name: "FooField"}))
	assert.True(t, generator.RegisterClass(metadata.Class{Name: "FooFieldsFromObjects"}))
}

func TestGeneratorRegisterClassCopies(t *testing.T) {
	generator, dir := newTestGenerator(t)
	class := metadata.Class{Name: "Player"}
	require.True(t, generator.RegisterClass(class))
	class.Fields.Add(metadata.Variable{Type: metadata.I32, Name: "health"})

	paths, err := generator.Generate()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "Player_il2cpp.go")}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"_ [0]uint64"}, structMembers(t, parseSource(t, string(data)), "PlayerFields"))
}

func TestGeneratorFileNamesAreRegularSources(t *testing.T) {
	generator, dir := newTestGenerator(t)
	for _, name := range []string{"Bar_test", "Input_windows", "Vector_amd64", "Socket_linux_arm64"} {
		require.True(t, generator.RegisterClass(metadata.Class{Name: name}))
	}

	paths, err := generator.Generate()
	require.NoError(t, err)
	require.Len(t, paths, 4)

	for _, path := range paths {
		name := filepath.Base(path)
		assert.False(t, strings.HasSuffix(name, "_test.go"), "%s is a test file", name)
		match, err := build.Default.MatchFile(dir, name)
		require.NoError(t, err)
		assert.True(t, match, "%s is excluded from the build", name)
	}
}

// Resolves the runtime package from its source in this repository and
// everything else from GOROOT.
type runtimeImporter struct {
	runtime  *types.Package
	fallback types.Importer
}

func (i runtimeImporter) Import(path string) (*types.Package, error) {
	if path == DefaultRuntimePackage {
		return i.runtime, nil
	}
	return i.fallback.Import(path)
}

func checkPackage(t *testing.T, paths []string) {
	t.Helper()

	fset := token.NewFileSet()
	fallback := importer.ForCompiler(fset, "source", nil)

	runtimeFile, err := parser.ParseFile(fset, filepath.Join("..", "..", "il2cpp", "il2cpp.go"), nil, 0)
	require.NoError(t, err)
	runtime, err := (&types.Config{Importer: fallback}).Check(DefaultRuntimePackage, fset, []*ast.File{runtimeFile}, nil)
	require.NoError(t, err)

	files := make([]*ast.File, 0, len(paths))
	for _, path := range paths {
		file, err := parser.ParseFile(fset, path, nil, 0)
		require.NoError(t, err)
		files = append(files, file)
	}

	conf := types.Config{Importer: runtimeImporter{runtime: runtime, fallback: fallback}}
	_, err = conf.Check("game", fset, files, nil)
	require.NoError(t, err)
}

func typeCheckClasses() []metadata.Class {
	everyType := metadata.Class{Namespace: metadata.Namespace{"Game"}, Name: "Everything"}
	for _, logicalType := range metadata.LogicalTypes() {
		everyType.Fields.Add(metadata.Variable{Type: logicalType, Name: "field" + logicalType.String()})
	}

	return []metadata.Class{
		exampleClass(),
		everyType,
		{Name: "Bar_test"},
		{Namespace: metadata.Namespace{"Game"}, Name: "<>c__DisplayClass0_0"},
		{Name: "Player", Fields: metadata.NewFieldSet(
			metadata.Variable{Type: metadata.String, Name: "<Name>k__BackingField"},
			metadata.Variable{Type: metadata.I32, Name: "name"},
			metadata.Variable{Type: metadata.F32, Name: "type"},
		)},
	}
}

func TestGeneratedFilesTypeCheck(t *testing.T) {
	generator, _ := newTestGenerator(t)
	for _, class := range typeCheckClasses() {
		require.True(t, generator.RegisterClass(class), class.FullName())
	}

	paths, err := generator.Generate()
	require.NoError(t, err)
	require.Len(t, paths, 5)
	checkPackage(t, paths)
}

func TestGeneratedSingleFileTypeChecks(t *testing.T) {
	generator, _ := newTestGenerator(t)
	generator.SingleFile = true
	for _, class := range typeCheckClasses() {
		require.True(t, generator.RegisterClass(class), class.FullName())
	}

	paths, err := generator.Generate()
	require.NoError(t, err)
	require.Len(t, paths, 1)
	checkPackage(t, paths)
}
