package power

import (
	"context"
	"os"
	"strings"

	"codeberg.org/mutker/telemetrylab/internal/errors"
)

// Source names accepted by NewSource.
const (
	SourceSysfs  = "sysfs"
	SourceStatic = "static"

	// DefaultProfilePath is the ACPI platform profile exposed by Linux.
	DefaultProfilePath = "/sys/firmware/acpi/platform_profile"
)

// Source samples the platform power-save flag.
type Source interface {
	PowerSave(ctx context.Context) (bool, error)
}

// StaticSource always reports the same value.
type StaticSource bool

func (s StaticSource) PowerSave(context.Context) (bool, error) {
	return bool(s), nil
}

// SysfsSource reads a platform profile file such as
// /sys/firmware/acpi/platform_profile.
type SysfsSource struct {
	Path string
}

// powerSaveProfiles are the profile names treated as power-save.
var powerSaveProfiles = map[string]bool{
	"low-power":   true,
	"quiet":       true,
	"cool":        true,
	"power-saver": true,
}

func (s SysfsSource) PowerSave(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path := s.Path
	if path == "" {
		path = DefaultProfilePath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, errors.New().Wrap(ErrReadProfile, err).WithData(path)
	}

	return IsPowerSaveProfile(string(data)), nil
}

// IsPowerSaveProfile reports whether a platform profile name denotes a
// power-save mode.
func IsPowerSaveProfile(profile string) bool {
	return powerSaveProfiles[strings.ToLower(strings.TrimSpace(profile))]
}

// NewSource builds the named source.
func NewSource(name, profilePath string, static bool) (Source, error) {
	switch name {
	case SourceSysfs:
		return SysfsSource{Path: profilePath}, nil
	case SourceStatic:
		return StaticSource(static), nil
	default:
		return nil, errors.New().WithData(ErrInvalidSource, name)
	}
}
