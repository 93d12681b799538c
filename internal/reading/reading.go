// Package reading defines the air-quality reading entity.
//
// A Reading is one immutable sample from an APC particulate/gas sensor.
// It is created exactly once at successful ingestion and never mutated;
// corrections are modeled as new readings.
package reading

import (
	"time"

	"github.com/google/uuid"
)

// Field names, as used in validation diagnostics, configuration bounds and
// the persisted schema.
const (
	FieldMeasurementTime = "measurement_time"
	FieldLocation        = "location"
	FieldDeviceSN        = "device_sn"
	FieldTVOC            = "tvoc"
	FieldECO2            = "eco2"
	FieldAQI             = "aqi"
	FieldTemperature     = "temperature"
	FieldHumidity        = "humidity"
	FieldPM1_0           = "pm1_0"
	FieldPM2_5           = "pm2_5"
	FieldPM10            = "pm10"
	FieldPM1_0InAir      = "pm1_0_in_air"
	FieldPM2_5InAir      = "pm2_5_in_air"
	FieldPM10InAir       = "pm10_in_air"
	FieldUM0_3Particles  = "um0_3_particles"
	FieldUM0_5Particles  = "um0_5_particles"
	FieldUM1Particles    = "um1_particles"
	FieldUM2_5Particles  = "um2_5_particles"
	FieldUM5Particles    = "um5_particles"
	FieldUM10Particles   = "um10_particles"
)

// Raw is a reading as handed over by an upstream transport collaborator,
// before validation. Sensor values are pointers so that an absent field is
// distinguishable from a legitimate zero; MeasurementTime uses the zero
// time for absence and strings use the empty string.
type Raw struct {
	MeasurementTime time.Time
	Location        string
	DeviceSN        string

	// Gas/environmental values
	TVOC        *int // ppb
	ECO2        *int // ppm
	AQI         *int // UBA classification, 1-5
	Temperature *int // 0.1 C units
	Humidity    *int // 0.1 %RH units

	// Particulate mass concentrations, standard calibration basis (ug/m3)
	PM1_0 *int
	PM2_5 *int
	PM10  *int

	// Particulate mass concentrations, atmospheric calibration basis (ug/m3).
	// A distinct basis from the standard set above; never conflated.
	PM1_0InAir *int
	PM2_5InAir *int
	PM10InAir  *int

	// Particle counts per 0.1 L of air, binned by diameter threshold
	UM0_3Particles *int
	UM0_5Particles *int
	UM1Particles   *int
	UM2_5Particles *int
	UM5Particles   *int
	UM10Particles  *int
}

// Validated is a Raw that passed validation: every field present, strings
// trimmed, timestamps normalized to millisecond precision UTC. It carries
// no identity yet; the identity assigner turns it into a Reading.
type Validated struct {
	MeasurementTime time.Time
	Location        string
	DeviceSN        string

	TVOC        int
	ECO2        int
	AQI         int
	Temperature int
	Humidity    int

	PM1_0 int
	PM2_5 int
	PM10  int

	PM1_0InAir int
	PM2_5InAir int
	PM10InAir  int

	UM0_3Particles int
	UM0_5Particles int
	UM1Particles   int
	UM2_5Particles int
	UM5Particles   int
	UM10Particles  int
}

// Reading is a stored, immutable sensor sample. ID and CreatedOn are set by
// the system at acceptance time and are never supplied by the caller.
type Reading struct {
	ID        uuid.UUID
	CreatedOn time.Time

	MeasurementTime time.Time
	Location        string
	DeviceSN        string

	TVOC        int
	ECO2        int
	AQI         int
	Temperature int
	Humidity    int

	PM1_0 int
	PM2_5 int
	PM10  int

	PM1_0InAir int
	PM2_5InAir int
	PM10InAir  int

	UM0_3Particles int
	UM0_5Particles int
	UM1Particles   int
	UM2_5Particles int
	UM5Particles   int
	UM10Particles  int
}

// Key returns the dedup key for this reading's series.
func (r *Reading) Key() string {
	return r.DeviceSN + "/" + r.MeasurementTime.UTC().Format(time.RFC3339Nano)
}

// SamePayload reports whether two readings carry the identical payload,
// ignoring the system-assigned ID and CreatedOn. Used by the dedup policy
// to tell a harmless retry from a conflicting duplicate.
func (r *Reading) SamePayload(other *Reading) bool {
	if other == nil {
		return false
	}
	return r.MeasurementTime.Equal(other.MeasurementTime) &&
		r.Location == other.Location &&
		r.DeviceSN == other.DeviceSN &&
		r.TVOC == other.TVOC &&
		r.ECO2 == other.ECO2 &&
		r.AQI == other.AQI &&
		r.Temperature == other.Temperature &&
		r.Humidity == other.Humidity &&
		r.PM1_0 == other.PM1_0 &&
		r.PM2_5 == other.PM2_5 &&
		r.PM10 == other.PM10 &&
		r.PM1_0InAir == other.PM1_0InAir &&
		r.PM2_5InAir == other.PM2_5InAir &&
		r.PM10InAir == other.PM10InAir &&
		r.UM0_3Particles == other.UM0_3Particles &&
		r.UM0_5Particles == other.UM0_5Particles &&
		r.UM1Particles == other.UM1Particles &&
		r.UM2_5Particles == other.UM2_5Particles &&
		r.UM5Particles == other.UM5Particles &&
		r.UM10Particles == other.UM10Particles
}
