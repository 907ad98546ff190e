package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltastream-lab/tradesim/pkg/errors"
)

func TestCheckSchemaCompatibility(t *testing.T) {
	tests := []struct {
		name             string
		configVersion    string
		supportedVersion string
		expectError      bool
		errorContains    string
	}{
		{
			name:             "exact match",
			configVersion:    "1.2.0",
			supportedVersion: "1.2.0",
			expectError:      false,
		},
		{
			name:             "patch differs",
			configVersion:    "1.2.1",
			supportedVersion: "1.2.0",
			expectError:      false,
		},
		{
			name:             "v prefix is tolerated",
			configVersion:    "v1.2.0",
			supportedVersion: "1.2.3",
			expectError:      false,
		},
		{
			name:             "minor differs",
			configVersion:    "1.3.0",
			supportedVersion: "1.2.0",
			expectError:      true,
			errorContains:    "minor version mismatch",
		},
		{
			name:             "major differs",
			configVersion:    "2.0.0",
			supportedVersion: "1.2.0",
			expectError:      true,
			errorContains:    "major version mismatch",
		},
		{
			name:             "config from dev build skips check",
			configVersion:    "main",
			supportedVersion: "1.2.0",
			expectError:      false,
		},
		{
			name:             "dev build loads any config",
			configVersion:    "1.2.0",
			supportedVersion: "main",
			expectError:      false,
		},
		{
			name:             "garbage config version",
			configVersion:    "not-a-version",
			supportedVersion: "1.2.0",
			expectError:      true,
			errorContains:    "invalid config schema version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSchemaCompatibility(tt.configVersion, tt.supportedVersion)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.True(t, errors.HasCode(err, errors.ErrCodeSchemaVersionMismatch))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
