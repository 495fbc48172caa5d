package thermal

import (
	"math"
	"strconv"
	"strings"

	"codeberg.org/mutker/argon1d/internal/errors"
	"github.com/spf13/afero"
)

// DefaultZone is the sysfs file holding the SoC temperature.
const DefaultZone = "/sys/class/thermal/thermal_zone0/temp"

// Sensor yields the current temperature in whole degrees Celsius.
type Sensor interface {
	Read() (int, error)
}

// Zone reads a sysfs thermal zone file containing millidegrees.
type Zone struct {
	fs   afero.Fs
	path string
}

// NewZone returns a sensor for the zone file at path on the OS filesystem.
func NewZone(path string) *Zone {
	return NewZoneFs(afero.NewOsFs(), path)
}

// NewZoneFs returns a sensor reading path from fs.
func NewZoneFs(fs afero.Fs, path string) *Zone {
	if path == "" {
		path = DefaultZone
	}

	return &Zone{fs: fs, path: path}
}

// Read returns the temperature rounded to the nearest degree.
func (z *Zone) Read() (int, error) {
	errFactory := errors.New()

	data, err := afero.ReadFile(z.fs, z.path)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrSensorUnavailable, err)
	}

	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrSensorUnavailable, err)
	}
	if math.IsNaN(milli) || math.IsInf(milli, 0) {
		return 0, errFactory.WithData(errors.ErrSensorUnavailable, z.path+": non-finite reading")
	}

	return int(math.Round(milli / 1000)), nil
}
