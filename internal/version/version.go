// Package version provides version information for notechat.
// Values are injected at build time with -ldflags and validated as semantic versions.
package version

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Build information that can be set at compile time via -ldflags
var (
	// Version is the semantic version of the application
	Version = "0.1.0"

	// GitCommit is the git commit hash when the binary was built
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built
	BuildDate = "unknown"
)

// Info represents comprehensive version information
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetBaseVersion returns the base version (major.minor.patch) without build metadata
func GetBaseVersion() string {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return Version
	}
	return fmt.Sprintf("%d.%d.%d", sv.Major(), sv.Minor(), sv.Patch())
}

// GetBuildMetadata returns the build metadata part of the version (after +)
func GetBuildMetadata() string {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return ""
	}
	return sv.Metadata()
}

// GetInfo returns comprehensive version information
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		SemVer:    sv,
	}, nil
}

// GetFormattedVersion returns a one-line version string
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("notechat v%s (invalid version)", Version)
	}

	parts := []string{fmt.Sprintf("notechat v%s", info.Version)}

	if info.GitCommit != "unknown" && info.GitCommit != "" {
		shortCommit := info.GitCommit
		if len(shortCommit) > 7 {
			shortCommit = shortCommit[:7]
		}
		parts = append(parts, fmt.Sprintf("commit %s", shortCommit))
	}

	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, fmt.Sprintf("built %s", info.BuildDate))
	}

	return strings.Join(parts, ", ")
}

// GetDetailedVersion returns detailed version information for debugging
func GetDetailedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("notechat v%s (error: %v)", Version, err)
	}

	buildDate := info.BuildDate
	if built, err := GetBuildTime(); err == nil {
		buildDate = built.UTC().Format(time.RFC3339)
	}

	lines := []string{
		fmt.Sprintf("notechat v%s", info.Version),
		fmt.Sprintf("Release: %s", releaseKind()),
		fmt.Sprintf("Git Commit: %s", info.GitCommit),
		fmt.Sprintf("Build Date: %s", buildDate),
	}
	if buildMeta := GetBuildMetadata(); buildMeta != "" {
		lines = append(lines, fmt.Sprintf("Build Metadata: %s", buildMeta))
	}
	lines = append(lines,
		fmt.Sprintf("Go Version: %s", info.GoVersion),
		fmt.Sprintf("Platform: %s", info.Platform),
	)

	return strings.Join(lines, "\n")
}

// releaseKind names the kind of build for the detailed version output.
func releaseKind() string {
	switch {
	case IsPrerelease():
		return "prerelease"
	case IsDevelopment():
		return "development build"
	default:
		return "stable"
	}
}

// ValidateVersion validates that the current version is a valid semantic version
func ValidateVersion() error {
	_, err := semver.NewVersion(Version)
	if err != nil {
		return fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return nil
}

// IsPrerelease returns true if the current version is a prerelease
func IsPrerelease() bool {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false
	}
	return sv.Prerelease() != ""
}

// IsDevelopment returns true if this appears to be a development build
func IsDevelopment() bool {
	return GitCommit == "unknown" || BuildDate == "unknown"
}

// Satisfies reports whether the current version meets constraint (e.g. ">= 0.1, < 1").
// Settings files use it to require a minimum notechat version. A prerelease
// is checked by its base version, so 0.5.0-dev meets ">= 0.4.0".
func Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint '%s': %w", constraint, err)
	}
	if err := ValidateVersion(); err != nil {
		return false, err
	}
	current := Version
	if IsPrerelease() {
		current = GetBaseVersion()
	}
	sv, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("invalid semantic version '%s': %w", current, err)
	}
	return c.Check(sv), nil
}

// SetBuildInfo sets build information (used for testing)
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}

// GetBuildTime returns the build time as a time.Time if parseable
func GetBuildTime() (time.Time, error) {
	if BuildDate == "unknown" || BuildDate == "" {
		return time.Time{}, fmt.Errorf("build date not available")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, BuildDate); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse build date '%s'", BuildDate)
}
