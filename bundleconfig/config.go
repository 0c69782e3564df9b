// Package bundleconfig loads the BundleConfig: the immutable inputs for
// one pipeline run, merged from built-in defaults, an optional
// bundlekit.config.json file, and CLI flag overrides, in that ascending
// precedence order (defaults < file < explicit flags), over JSON, the
// format native to this system's own package ecosystem.
package bundleconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/xeipuuv/gojsonschema"

	"github.com/willibrandon/bundlekit/validate"
)

// DefaultConfigFileName is the conventional config file name looked up in
// the package directory when no --config path is given.
const DefaultConfigFileName = "bundlekit.config.json"

// Externals is the externals table: names split between runtime and
// optional dependencies, matching classify.ExternalsConfig's shape before
// it's turned into lookup sets.
type Externals struct {
	Runtime  []string `json:"runtime,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// Config is the BundleConfig: the complete, merged set of inputs for one
// pipeline run.
type Config struct {
	PackageDir               string            `json:"packageDir"`
	EntryPoints              []string          `json:"entryPoints,omitempty"`
	Externals                Externals         `json:"externals,omitempty"`
	AllowedLicenses          []string          `json:"allowedLicenses,omitempty"`
	Resources                map[string]string `json:"resources,omitempty"`
	DontAttribute            string            `json:"dontAttribute,omitempty"`
	Test                     string            `json:"test,omitempty"`
	MinifyWhitespace         bool              `json:"minifyWhitespace,omitempty"`
	Metafile                 string            `json:"metafile,omitempty"`
	Sourcemap                bool              `json:"sourcemap,omitempty"`
	VersionsFile             string            `json:"versionsFile,omitempty"`
	AttributeVersionsSeparately bool          `json:"attributeVersionsSeparately,omitempty"`
	LicensesPath             string            `json:"licensesPath,omitempty"`

	// Probe/tool binary overrides, ambient to the config loader.
	LicenseProbeBinary string `json:"licenseProbeBinary,omitempty"`
	CircularityBinary  string `json:"circularityBinary,omitempty"`
	BundlerBinary      string `json:"bundlerBinary,omitempty"`
	PackerBinary       string `json:"packerBinary,omitempty"`
}

// schemaDocument constrains the JSON config file's shape. Loaded from a
// literal string rather than a file on disk, matching gojsonschema's
// common NewStringLoader usage.
const schemaDocument = `{
  "type": "object",
  "properties": {
    "packageDir": {"type": "string"},
    "entryPoints": {"type": "array", "items": {"type": "string"}},
    "externals": {
      "type": "object",
      "properties": {
        "runtime": {"type": "array", "items": {"type": "string"}},
        "optional": {"type": "array", "items": {"type": "string"}}
      }
    },
    "allowedLicenses": {"type": "array", "items": {"type": "string"}},
    "resources": {"type": "object"},
    "dontAttribute": {"type": "string"},
    "test": {"type": "string"},
    "minifyWhitespace": {"type": "boolean"},
    "metafile": {"type": "string"},
    "sourcemap": {"type": "boolean"},
    "versionsFile": {"type": "string"},
    "attributeVersionsSeparately": {"type": "boolean"},
    "licensesPath": {"type": "string"}
  }
}`

// Defaults returns the built-in BundleConfig baseline.
func Defaults() Config {
	return Config{
		LicensesPath:       "THIRD_PARTY_LICENSES",
		LicenseProbeBinary: "license-probe",
		CircularityBinary:  "import-cycle-analyzer",
		BundlerBinary:      "js-bundler",
		PackerBinary:       "npm",
	}
}

// Load merges Defaults(), the JSON file at configPath (if it exists; a
// missing file is not an error; bundlekit.config.json is optional), and
// flagOverrides, in that ascending precedence order. configPath may be
// empty, in which case <packageDir>/bundlekit.config.json is tried.
func Load(packageDir, configPath string, flagOverrides Config) (Config, error) {
	cfg := Defaults()
	cfg.PackageDir = packageDir

	if configPath == "" {
		configPath = filepath.Join(packageDir, DefaultConfigFileName)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := validateAgainstSchema(data); err != nil {
			return Config{}, &validate.PipelineError{
				Code:    validate.CodeInvalidConfig,
				Message: fmt.Sprintf("%s failed schema validation", configPath),
				Cause:   err,
			}
		}

		var fileCfg Config
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, &validate.PipelineError{
				Code:    validate.CodeInvalidConfig,
				Message: fmt.Sprintf("parse %s", configPath),
				Cause:   err,
			}
		}
		cfg = merge(cfg, fileCfg)
	} else if !os.IsNotExist(err) {
		return Config{}, &validate.PipelineError{
			Code:    validate.CodeInvalidConfig,
			Message: fmt.Sprintf("read %s", configPath),
			Cause:   err,
		}
	}

	cfg = merge(cfg, flagOverrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateAgainstSchema(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaDocument)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("%s", errs[0].String())
		}
		return fmt.Errorf("invalid config document")
	}
	return nil
}

// merge layers override on top of base: any non-zero-valued field in
// override replaces the corresponding field in base. Slices and maps
// replace wholesale rather than append, last-writer-wins.
func merge(base, override Config) Config {
	out := base

	if override.PackageDir != "" {
		out.PackageDir = override.PackageDir
	}
	if len(override.EntryPoints) > 0 {
		out.EntryPoints = override.EntryPoints
	}
	if len(override.Externals.Runtime) > 0 {
		out.Externals.Runtime = override.Externals.Runtime
	}
	if len(override.Externals.Optional) > 0 {
		out.Externals.Optional = override.Externals.Optional
	}
	if len(override.AllowedLicenses) > 0 {
		out.AllowedLicenses = override.AllowedLicenses
	}
	if len(override.Resources) > 0 {
		out.Resources = override.Resources
	}
	if override.DontAttribute != "" {
		out.DontAttribute = override.DontAttribute
	}
	if override.Test != "" {
		out.Test = override.Test
	}
	if override.MinifyWhitespace {
		out.MinifyWhitespace = true
	}
	if override.Metafile != "" {
		out.Metafile = override.Metafile
	}
	if override.Sourcemap {
		out.Sourcemap = true
	}
	if override.VersionsFile != "" {
		out.VersionsFile = override.VersionsFile
	}
	if override.AttributeVersionsSeparately {
		out.AttributeVersionsSeparately = true
	}
	if override.LicensesPath != "" {
		out.LicensesPath = override.LicensesPath
	}
	if override.LicenseProbeBinary != "" {
		out.LicenseProbeBinary = override.LicenseProbeBinary
	}
	if override.CircularityBinary != "" {
		out.CircularityBinary = override.CircularityBinary
	}
	if override.BundlerBinary != "" {
		out.BundlerBinary = override.BundlerBinary
	}
	if override.PackerBinary != "" {
		out.PackerBinary = override.PackerBinary
	}

	return out
}

// Validate checks for contradictory configuration: a name cannot be both
// a runtime and optional external, and dontAttribute (if set) must
// compile as a regex.
func (c Config) Validate() error {
	if c.PackageDir == "" {
		return &validate.PipelineError{Code: validate.CodeInvalidConfig, Message: "packageDir is required"}
	}

	runtime := make(map[string]bool, len(c.Externals.Runtime))
	for _, n := range c.Externals.Runtime {
		runtime[n] = true
	}
	for _, n := range c.Externals.Optional {
		if runtime[n] {
			return &validate.PipelineError{
				Code:    validate.CodeInvalidConfig,
				Message: fmt.Sprintf("%q listed in both runtime and optional externals", n),
			}
		}
	}

	if c.DontAttribute != "" {
		if _, err := regexp.Compile(c.DontAttribute); err != nil {
			return &validate.PipelineError{Code: validate.CodeInvalidConfig, Message: "invalid dontAttribute regex", Cause: err}
		}
	}

	return nil
}

// DontAttributeRegex compiles DontAttribute, returning nil when unset.
func (c Config) DontAttributeRegex() *regexp.Regexp {
	if c.DontAttribute == "" {
		return nil
	}
	return regexp.MustCompile(c.DontAttribute)
}
