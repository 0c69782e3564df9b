// Package resources verifies that declared resource paths exist under a
// package's root directory.
package resources

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/willibrandon/bundlekit/validate"
)

// Resolve checks each logicalName -> relativePath entry against
// packageRoot, returning one missing-resource Violation per path that does
// not exist. Not auto-fixable: there is no way to synthesize a missing
// resource.
func Resolve(packageRoot string, declared map[string]string) []validate.Violation {
	var violations []validate.Violation

	for logicalName, relPath := range declared {
		absPath := filepath.Join(packageRoot, relPath)
		if _, err := os.Stat(absPath); err != nil {
			violations = append(violations, validate.Violation{
				Kind:    validate.KindMissingResource,
				Message: fmt.Sprintf("Unable to find resource (%s) relative to the package directory", logicalName),
			})
		}
	}

	return violations
}
