// Package version carries the build version stamped into the binary.
package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/simfolio-lab/simfolio/pkg/errors"
)

// Version is the build version, overridden at link time with
// -ldflags "-X .../internal/version.Version=v1.2.3". Development builds
// report "main".
var Version = "main"

// CheckCompatibility reports whether a bundle written by writerVersion can
// be read by this build. Development builds skip the check; released
// builds require matching major and minor versions.
func CheckCompatibility(writerVersion string) error {
	reader := strings.TrimPrefix(Version, "v")
	writer := strings.TrimPrefix(writerVersion, "v")

	if reader == "main" || writer == "main" {
		return nil
	}

	readerSemver, err := semver.NewVersion(reader)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid build version %q", reader)
	}

	writerSemver, err := semver.NewVersion(writer)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid writer version %q", writer)
	}

	if readerSemver.Major() != writerSemver.Major() || readerSemver.Minor() != writerSemver.Minor() {
		return errors.Newf(errors.ErrCodeInvalidVersion,
			"bundle written by %s is not readable by %s: major and minor versions must match", writer, reader)
	}

	return nil
}
