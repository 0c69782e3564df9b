// Package licenseprobe wraps the opaque license-metadata probe tool: given
// a working directory and a list of "name@version" identifiers, it returns
// declared license(s) plus paths to the license and notice files for each.
package licenseprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/willibrandon/bundlekit/shell"
)

// Entry is one package's probe result.
type Entry struct {
	Licenses    []string `json:"licenses"`
	LicenseFile string   `json:"licenseFile"`
	NoticeFile  string   `json:"noticeFile"`
}

// rawEntry mirrors the probe's wire format, where "licenses" is
// inconsistently either a bare string or an array of strings depending on
// the underlying package metadata.
type rawEntry struct {
	Licenses    json.RawMessage `json:"licenses"`
	LicenseFile string          `json:"licenseFile"`
	NoticeFile  string          `json:"noticeFile"`
}

// Invoker is the subset of shell.Adapter used here, narrowed for testing.
type Invoker interface {
	Run(ctx context.Context, tool, dir, name string, args ...string) ([]byte, error)
}

// Probe invokes the opaque license probe binary.
type Probe struct {
	invoker Invoker
	binary  string
}

// New creates a Probe. binary names the executable (e.g. "license-probe");
// invoker is typically a *shell.Adapter.
func New(invoker Invoker, binary string) *Probe {
	if binary == "" {
		binary = "license-probe"
	}
	return &Probe{invoker: invoker, binary: binary}
}

// Lookup runs the probe in dir for the given package identifiers
// ("name@version"), returning a map keyed by identifier. Identifiers the
// probe did not report are simply absent from the result; it is the
// caller's job (AttributionsEngine) to detect and handle misses, since a
// miss in a bulk lookup is recoverable via a per-package fallback while a
// miss in a fallback lookup is fatal.
func (p *Probe) Lookup(ctx context.Context, dir string, identifiers []string) (map[string]Entry, error) {
	if len(identifiers) == 0 {
		return map[string]Entry{}, nil
	}

	out, err := p.invoker.Run(ctx, "probe", dir, p.binary, "--json", "--packages", strings.Join(identifiers, ";"))
	if err != nil {
		return nil, err
	}

	var raw map[string]rawEntry
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode license probe output: %w", err)
	}

	result := make(map[string]Entry, len(raw))
	for id, re := range raw {
		result[id] = Entry{
			Licenses:    normalizeLicenses(re.Licenses),
			LicenseFile: re.LicenseFile,
			NoticeFile:  re.NoticeFile,
		}
	}
	return result, nil
}

// normalizeLicenses ingests the probe's dynamically-typed "licenses" field
// (scalar string or array of strings) into a single []string, wrapping a
// scalar response. An empty/absent field yields an empty (not nil) slice.
func normalizeLicenses(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return []string{}
		}
		return []string{asString}
	}

	return []string{}
}
