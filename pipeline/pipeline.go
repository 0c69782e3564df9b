// Package pipeline wires the bundle pipeline's stages end to end: resolve,
// classify, bundle/attribute, validate, (on fix) flush, write, pack. This
// is the library entry point the CLI commands call into.
package pipeline

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/willibrandon/bundlekit/attributions"
	"github.com/willibrandon/bundlekit/bundleconfig"
	"github.com/willibrandon/bundlekit/bundler"
	"github.com/willibrandon/bundlekit/circularity"
	"github.com/willibrandon/bundlekit/classify"
	"github.com/willibrandon/bundlekit/closure"
	"github.com/willibrandon/bundlekit/licenseprobe"
	"github.com/willibrandon/bundlekit/observability"
	"github.com/willibrandon/bundlekit/packer"
	"github.com/willibrandon/bundlekit/pkgjson"
	"github.com/willibrandon/bundlekit/shell"
	"github.com/willibrandon/bundlekit/validate"
	"github.com/willibrandon/bundlekit/writeengine"
)

// Pipeline wires every stage's collaborators, constructed once per run
// from a merged BundleConfig and shared Logger.
type Pipeline struct {
	cfg bundleconfig.Config
	log observability.Logger

	// runID identifies this invocation across log lines, independent of
	// any single package or command.
	runID string

	resolver    *closure.Resolver
	probe       *licenseprobe.Probe
	circularity *circularity.Analyzer
	bundler     *bundler.Bundler
	writer      *writeengine.Engine
	packer      *packer.Packer
}

// New constructs a Pipeline. invoker is typically a *shell.Adapter; a
// distinct instance is expected per run so circuit-breaker state does not
// leak across unrelated packages.
func New(cfg bundleconfig.Config, invoker *shell.Adapter, log observability.Logger) *Pipeline {
	if log == nil {
		log = observability.NewNullLogger()
	}

	probe := licenseprobe.New(invoker, cfg.LicenseProbeBinary)

	return &Pipeline{
		cfg:         cfg,
		log:         log,
		runID:       uuid.New().String(),
		resolver:    closure.NewResolver(log),
		probe:       probe,
		circularity: circularity.New(invoker, cfg.CircularityBinary),
		bundler:     bundler.New(invoker, cfg.BundlerBinary),
		writer:      writeengine.New(),
		packer:      packer.New(writeengine.New(), invoker, cfg.PackerBinary),
	}
}

// RunID returns the identifier assigned to this Pipeline at construction,
// suitable for correlating log lines and metrics across a single CLI
// invocation.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Prepared holds the shared intermediate state computed once per run and
// reused across Validate/Write/Pack, so a CLI invocation of each verb
// doesn't re-resolve and re-classify the closure redundantly.
type Prepared struct {
	Root              *closure.Package
	Classification     *classify.Classification
	Manifest           *pkgjson.Manifest
	AttributionsEngine *attributions.Engine
	AttrList           []attributions.Attribution
	Versions           attributions.VersionsIndex
}

// Prepare runs resolve -> classify -> attributions-collect, the shared
// prefix of every CLI verb.
func (p *Pipeline) Prepare(ctx context.Context) (*Prepared, error) {
	root, err := p.resolver.Resolve(p.cfg.PackageDir)
	if err != nil {
		return nil, err
	}

	externalsCfg := classify.NewExternalsConfig(p.cfg.Externals.Runtime, p.cfg.Externals.Optional)
	classification, err := classify.Classify(root, externalsCfg)
	if err != nil {
		return nil, err
	}

	observability.ClosureSize.WithLabelValues("bundled").Set(float64(len(classification.Bundled)))
	observability.ClosureSize.WithLabelValues("runtime-external").Set(float64(len(classification.RuntimeExternal)))
	observability.ClosureSize.WithLabelValues("optional-external").Set(float64(len(classification.OptionalExternal)))

	manifest, err := pkgjson.Load(p.cfg.PackageDir)
	if err != nil {
		return nil, &validate.PipelineError{Code: validate.CodeResolutionFailed, Message: "load package manifest", Cause: err}
	}

	var versionsPath string
	if p.cfg.VersionsFile != "" {
		versionsPath = filepath.Join(p.cfg.PackageDir, p.cfg.VersionsFile)
	}

	attrEngine := attributions.New(attributions.Config{
		PackageDir:               p.cfg.PackageDir,
		PackageName:              manifest.Name,
		Dependencies:             classification.Bundled,
		DependenciesRoot:         p.cfg.PackageDir,
		LicensesPath:             filepath.Join(p.cfg.PackageDir, p.cfg.LicensesPath),
		AllowedLicenses:          p.cfg.AllowedLicenses,
		Exclude:                  p.cfg.DontAttributeRegex(),
		VersionsPath:             versionsPath,
		EncodeVersionsSeparately: p.cfg.AttributeVersionsSeparately,
	}, p.probe)

	attrs, versions, err := attrEngine.Collect(ctx)
	if err != nil {
		return nil, err
	}

	p.log.Info("Run {RunID} resolved {Count} packages, {Bundled} bundled, {Runtime} runtime-external, {Optional} optional-external",
		p.runID, len(closure.Flatten(root)), len(classification.Bundled), len(classification.RuntimeExternal), len(classification.OptionalExternal))

	return &Prepared{
		Root:               root,
		Classification:     classification,
		Manifest:           manifest,
		AttributionsEngine: attrEngine,
		AttrList:           attrs,
		Versions:           versions,
	}, nil
}

// entryPoints returns the configured entry points, defaulting to the
// manifest's declared "main" field when none were supplied.
func (p *Pipeline) entryPoints(manifest *pkgjson.Manifest) []string {
	if len(p.cfg.EntryPoints) > 0 {
		return p.cfg.EntryPoints
	}
	if manifest.Main != "" {
		return []string{manifest.Main}
	}
	return []string{"index.js"}
}

// Validate runs the fused validation report. When fix is true, every
// fixable violation's Fixer is invoked in report order before returning.
func (p *Pipeline) Validate(ctx context.Context, prepared *Prepared, fix bool) (validate.Report, error) {
	attributionViolations := prepared.AttributionsEngine.Validate(prepared.AttrList, prepared.Versions)

	orchestrator := &validate.Orchestrator{
		Circularity:    p.circularity,
		EntryPoints:    p.entryPoints(prepared.Manifest),
		DeclaredAssets: p.cfg.Resources,
	}

	report, err := orchestrator.Run(ctx, prepared.Root, attributionViolations)
	if err != nil {
		return validate.Report{}, err
	}

	for _, v := range report.Violations {
		observability.ViolationsTotal.WithLabelValues(string(v.Kind)).Inc()
	}

	if fix {
		if err := validate.Fix(report); err != nil {
			return report, err
		}
	}

	p.log.Info("Validation produced {Count} violations (fix={Fix})", len(report.Violations), fix)

	return report, nil
}

// writePlan builds the writeengine.Plan shared by Write and Pack.
func (p *Pipeline) writePlan(ctx context.Context, prepared *Prepared, outDir string) (writeengine.Plan, error) {
	bundledNames := make([]string, 0, len(prepared.Classification.Bundled))
	for _, d := range prepared.Classification.Bundled {
		bundledNames = append(bundledNames, d.Name)
	}

	externals := make([]string, 0, len(prepared.Classification.RuntimeExternal)+len(prepared.Classification.OptionalExternal))
	for _, d := range prepared.Classification.RuntimeExternal {
		externals = append(externals, d.Name)
	}
	for _, d := range prepared.Classification.OptionalExternal {
		externals = append(externals, d.Name)
	}

	result, err := p.bundler.Run(ctx, p.cfg.PackageDir, outDir, externals)
	if err != nil {
		return writeengine.Plan{}, err
	}

	externalRuntime := map[string]string{}
	for _, d := range prepared.Classification.RuntimeExternal {
		externalRuntime[d.Name] = prepared.Manifest.Dependencies[d.Name]
	}
	externalOptional := map[string]string{}
	for _, d := range prepared.Classification.OptionalExternal {
		externalOptional[d.Name] = prepared.Manifest.OptionalDependencies[d.Name]
	}

	return writeengine.Plan{
		PackageDir:        p.cfg.PackageDir,
		OutDir:            outDir,
		BundlerOutput:     result.OutputDir,
		BundledNames:      bundledNames,
		ExternalRuntime:   externalRuntime,
		ExternalOptional:  externalOptional,
		Attributions:      prepared.AttributionsEngine,
		AttrList:          prepared.AttrList,
		Versions:          prepared.Versions,
	}, nil
}

// Write produces the bundle directory at outDir.
func (p *Pipeline) Write(ctx context.Context, prepared *Prepared, outDir string) (string, error) {
	plan, err := p.writePlan(ctx, prepared, outDir)
	if err != nil {
		return "", err
	}
	return p.writer.Write(plan)
}

// Pack produces the final tarball in destinationDir.
func (p *Pipeline) Pack(ctx context.Context, prepared *Prepared, stagingDir, destinationDir string) (string, error) {
	plan, err := p.writePlan(ctx, prepared, stagingDir)
	if err != nil {
		return "", err
	}
	return p.packer.Pack(ctx, plan, prepared.Manifest.Name, prepared.Manifest.Version, destinationDir)
}
