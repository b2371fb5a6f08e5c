package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"il2cppgen/internal/config"
	"il2cppgen/internal/generation"
	"il2cppgen/internal/metadata"

	"golang.org/x/sync/errgroup"
)

var errNoConsent = errors.New("explicit agreement was not given")

type options struct {
	configPath     string
	packageName    string
	outputPath     string
	runtimePackage string
	singleFile     bool
	include        string
	exclude        string
	nugetPackage   string
	nugetVersion   string
	forceClean     bool
	verbose        bool
	files          []string
	set            map[string]bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(ctx, opts, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("generation failed", "error", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (*options, error) {
	opts := &options{set: make(map[string]bool)}
	flags := flag.NewFlagSet("il2cppgen", flag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "The path to a TOML configuration file.")
	flags.StringVar(&opts.packageName, "packageName", config.DefaultPackageName, "The name of the package with generated code.")
	flags.StringVar(&opts.outputPath, "outputPath", config.DefaultOutputPath, "The path where all generated files will be placed.")
	flags.StringVar(&opts.runtimePackage, "runtimePackage", generation.DefaultRuntimePackage, "The import path of the il2cpp runtime package used by generated code.")
	flags.BoolVar(&opts.singleFile, "singleFile", false, "If given emits all classes into one file named after the package.")
	flags.StringVar(&opts.include, "include", "", "Comma separated class patterns to generate, e.g. 'Game.**'.")
	flags.StringVar(&opts.exclude, "exclude", "", "Comma separated class patterns to skip.")
	flags.StringVar(&opts.nugetPackage, "nuget", "", "The id of a NuGet package whose assemblies are read.")
	flags.StringVar(&opts.nugetVersion, "nugetVersion", "", "Version constraint for the NuGet package. Default: newest.")
	flags.BoolVar(&opts.forceClean, "forceCleanOutput", false, "If given forces cleaning output directory before generation.")
	flags.BoolVar(&opts.verbose, "v", false, "Enables debug logging.")
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "App that generates Go wrappers for IL2CPP classes.")
		fmt.Fprintln(flags.Output(), "Usage: il2cppgen [flags] FILES...")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	flags.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.files = flags.Args()
	return opts, nil
}

// Merges the configuration file with flags given explicitly on the command line.
func (opts *options) config() (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if opts.set["packageName"] {
		cfg.PackageName = opts.packageName
	}
	if opts.set["outputPath"] {
		cfg.OutputPath = opts.outputPath
	}
	if opts.set["runtimePackage"] {
		cfg.RuntimePackage = opts.runtimePackage
	}
	if opts.set["singleFile"] {
		cfg.SingleFile = opts.singleFile
	}
	if opts.set["include"] {
		cfg.Filter.Include = splitList(opts.include)
	}
	if opts.set["exclude"] {
		cfg.Filter.Exclude = splitList(opts.exclude)
	}
	if opts.set["nuget"] {
		cfg.Nuget.Package = opts.nugetPackage
	}
	if opts.set["nugetVersion"] {
		cfg.Nuget.Version = opts.nugetVersion
	}

	return cfg, nil
}

func run(ctx context.Context, opts *options, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}

	emitter := generation.NewEmitter(generation.NewTypeMapper(cfg.RuntimePackage))
	if len(opts.files) == 0 && cfg.Nuget.Package == "" {
		example := exampleClass()
		_, err := fmt.Fprintln(stdout, emitter.Emit(&example))
		return err
	}

	filter, err := metadata.NewFilter(cfg.Filter.Include, cfg.Filter.Exclude)
	if err != nil {
		return err
	}

	classes, err := loadClasses(ctx, opts.files, cfg.Nuget, logger)
	if err != nil {
		return err
	}
	classes = filter.Apply(classes)
	logger.Info("classes selected", "count", len(classes))

	if err := clearDirectoryIfNotEmpty(cfg.OutputPath, opts.forceClean, stdin, stdout); err != nil {
		return err
	}

	generator := generation.NewGenerator(cfg.PackageName, cfg.OutputPath, emitter, logger)
	generator.SingleFile = cfg.SingleFile
	for _, class := range classes {
		generator.RegisterClass(class)
	}

	_, err = generator.Generate()
	return err
}

// Reads all assemblies concurrently. Classes keep the order of their sources.
func loadClasses(ctx context.Context, files []string, nuget config.Nuget, logger *slog.Logger) ([]metadata.Class, error) {
	var assemblies []metadata.Assembly
	if nuget.Package != "" {
		version, fetched, err := metadata.NewNugetClient(nuget.Source).FetchAssemblies(ctx, nuget.Package, nuget.Version)
		if err != nil {
			return nil, err
		}
		logger.Info("fetched package", "package", nuget.Package, "version", version, "assemblies", len(fetched))
		assemblies = fetched
	}

	results := make([][]metadata.Class, len(files)+len(assemblies))
	group, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reader, err := metadata.OpenAssembly(path)
			if err != nil {
				return err
			}
			return readClasses(reader, path, &results[i], logger)
		})
	}
	for i, assembly := range assemblies {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reader, err := metadata.ReadAssembly(assembly.Data)
			if err != nil {
				return fmt.Errorf("%s: %w", assembly.Name, err)
			}
			return readClasses(reader, assembly.Name, &results[len(files)+i], logger)
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	classes := make([]metadata.Class, 0)
	for _, result := range results {
		classes = append(classes, result...)
	}

	return classes, nil
}

func readClasses(reader *metadata.AssemblyReader, source string, out *[]metadata.Class, logger *slog.Logger) error {
	classes, err := reader.WithLogger(logger.With("source", source)).Classes()
	if err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}

	logger.Debug("read assembly", "source", source, "classes", len(classes))
	*out = classes
	return nil
}

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

func splitList(value string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// Asks before removing a non-empty output directory unless silent is set.
func clearDirectoryIfNotEmpty(path string, silent bool, stdin io.Reader, stdout io.Writer) error {
	directory, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = directory.Readdirnames(1)
	directory.Close()
	if err == io.EOF {
		return nil
	}

	if err != nil {
		return err
	}

	if !silent {
		fmt.Fprint(stdout, "Output directory is not empty. Continuation will result in removing all output files. Proceed? [Y/n] ")
		response, _ := bufio.NewReader(stdin).ReadString('\n')
		if strings.ToUpper(strings.TrimSpace(response)) != "Y" {
			return errNoConsent
		}
	}

	return os.RemoveAll(path)
}
