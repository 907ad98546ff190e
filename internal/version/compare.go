package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// CheckSchemaCompatibility checks whether a configuration file's schema
// version can be loaded by this build.
// Returns nil if compatible, error with details if not.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
func CheckSchemaCompatibility(configVersion, supportedVersion string) error {
	// Strip 'v' prefix if present for consistency
	configVersion = strings.TrimPrefix(configVersion, "v")
	supportedVersion = strings.TrimPrefix(supportedVersion, "v")

	// Skip the check for "main" (development builds)
	if configVersion == "main" || supportedVersion == "main" {
		return nil
	}

	configSemver, err := semver.NewVersion(configVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaVersionMismatch, err, "invalid config schema version '%s'", configVersion)
	}

	supportedSemver, err := semver.NewVersion(supportedVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaVersionMismatch, err, "invalid supported schema version '%s'", supportedVersion)
	}

	if configSemver.Major() != supportedSemver.Major() {
		return errors.Newf(errors.ErrCodeSchemaVersionMismatch,
			"schema major version mismatch: config is %d.x.x but this build supports %d.x.x",
			configSemver.Major(), supportedSemver.Major())
	}

	if configSemver.Minor() != supportedSemver.Minor() {
		return errors.Newf(errors.ErrCodeSchemaVersionMismatch,
			"schema minor version mismatch: config is %d.%d.x but this build supports %d.%d.x",
			configSemver.Major(), configSemver.Minor(),
			supportedSemver.Major(), supportedSemver.Minor())
	}

	// Patch versions can differ, so we're compatible
	return nil
}
