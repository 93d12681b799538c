// Package validate checks raw readings for structural and semantic
// well-formedness before they are accepted into the store.
//
// Validation is pure: no side effects, no I/O. Every violated field is
// reported, not just the first, so transport collaborators can log a
// complete diagnosis.
package validate

import (
	"strings"
	"time"

	"github.com/apc-tools/apcstore/internal/config"
	"github.com/apc-tools/apcstore/internal/errors"
	"github.com/apc-tools/apcstore/internal/reading"
)

// DefaultBounds returns the plausible range per sensor field, taken from
// the APC1 datasheet. Concentrations and counts are non-negative; AQI is
// the 1-5 UBA classification; temperature and humidity are in tenths of a
// degree C and tenths of a percent RH respectively.
func DefaultBounds() map[string]config.Bound {
	return map[string]config.Bound{
		reading.FieldTVOC:           {Min: 0, Max: 65000},
		reading.FieldECO2:           {Min: 400, Max: 65000},
		reading.FieldAQI:            {Min: 1, Max: 5},
		reading.FieldTemperature:    {Min: 0, Max: 500},
		reading.FieldHumidity:       {Min: 0, Max: 1000},
		reading.FieldPM1_0:          {Min: 0, Max: 500},
		reading.FieldPM2_5:          {Min: 0, Max: 1000},
		reading.FieldPM10:           {Min: 0, Max: 1500},
		reading.FieldPM1_0InAir:     {Min: 0, Max: 500},
		reading.FieldPM2_5InAir:     {Min: 0, Max: 1000},
		reading.FieldPM10InAir:      {Min: 0, Max: 1500},
		reading.FieldUM0_3Particles: {Min: 0, Max: 65535},
		reading.FieldUM0_5Particles: {Min: 0, Max: 65535},
		reading.FieldUM1Particles:   {Min: 0, Max: 65535},
		reading.FieldUM2_5Particles: {Min: 0, Max: 65535},
		reading.FieldUM5Particles:   {Min: 0, Max: 65535},
		reading.FieldUM10Particles:  {Min: 0, Max: 65535},
	}
}

// Validator validates raw readings against configured plausibility rules.
type Validator struct {
	maxFutureSkew time.Duration
	minValidTime  time.Time
	bounds        map[string]config.Bound

	now func() time.Time
}

// New creates a validator from the validation configuration. Bounds given
// in the config override the datasheet defaults field by field.
func New(cfg config.ValidationConfig) *Validator {
	bounds := DefaultBounds()
	for field, b := range cfg.Bounds {
		bounds[field] = b
	}

	return &Validator{
		maxFutureSkew: cfg.MaxFutureSkew,
		minValidTime:  cfg.MinValidTime,
		bounds:        bounds,
		now:           time.Now,
	}
}

// Validate checks every mandatory field of raw. On success it returns the
// validated reading with strings trimmed and the measurement time truncated
// to millisecond precision UTC, matching the store's representation. On
// failure it returns a *errors.FieldErrors naming every violation.
func (v *Validator) Validate(raw *reading.Raw) (*reading.Validated, error) {
	ferrs := errors.NewFieldErrors()

	mt := raw.MeasurementTime
	switch {
	case mt.IsZero():
		ferrs.AddMissing(reading.FieldMeasurementTime)
	case mt.Before(v.minValidTime):
		ferrs.AddInvalid(reading.FieldMeasurementTime, "before minimum valid time")
	case mt.After(v.now().Add(v.maxFutureSkew)):
		ferrs.AddInvalid(reading.FieldMeasurementTime, "beyond clock-skew tolerance")
	}

	location := strings.TrimSpace(raw.Location)
	if location == "" {
		ferrs.AddMissing(reading.FieldLocation)
	}

	deviceSN := strings.TrimSpace(raw.DeviceSN)
	if deviceSN == "" {
		ferrs.AddMissing(reading.FieldDeviceSN)
	}

	fields := []struct {
		name string
		val  *int
	}{
		{reading.FieldTVOC, raw.TVOC},
		{reading.FieldECO2, raw.ECO2},
		{reading.FieldAQI, raw.AQI},
		{reading.FieldTemperature, raw.Temperature},
		{reading.FieldHumidity, raw.Humidity},
		{reading.FieldPM1_0, raw.PM1_0},
		{reading.FieldPM2_5, raw.PM2_5},
		{reading.FieldPM10, raw.PM10},
		{reading.FieldPM1_0InAir, raw.PM1_0InAir},
		{reading.FieldPM2_5InAir, raw.PM2_5InAir},
		{reading.FieldPM10InAir, raw.PM10InAir},
		{reading.FieldUM0_3Particles, raw.UM0_3Particles},
		{reading.FieldUM0_5Particles, raw.UM0_5Particles},
		{reading.FieldUM1Particles, raw.UM1Particles},
		{reading.FieldUM2_5Particles, raw.UM2_5Particles},
		{reading.FieldUM5Particles, raw.UM5Particles},
		{reading.FieldUM10Particles, raw.UM10Particles},
	}

	for _, f := range fields {
		if f.val == nil {
			ferrs.AddMissing(f.name)
			continue
		}
		if b, ok := v.bounds[f.name]; ok {
			if *f.val < b.Min || *f.val > b.Max {
				ferrs.AddOutOfRange(f.name, *f.val, b.Min, b.Max)
			}
		}
	}

	if err := ferrs.Err(); err != nil {
		return nil, err
	}

	return &reading.Validated{
		MeasurementTime: mt.UTC().Truncate(time.Millisecond),
		Location:        location,
		DeviceSN:        deviceSN,
		TVOC:            *raw.TVOC,
		ECO2:            *raw.ECO2,
		AQI:             *raw.AQI,
		Temperature:     *raw.Temperature,
		Humidity:        *raw.Humidity,
		PM1_0:           *raw.PM1_0,
		PM2_5:           *raw.PM2_5,
		PM10:            *raw.PM10,
		PM1_0InAir:      *raw.PM1_0InAir,
		PM2_5InAir:      *raw.PM2_5InAir,
		PM10InAir:       *raw.PM10InAir,
		UM0_3Particles:  *raw.UM0_3Particles,
		UM0_5Particles:  *raw.UM0_5Particles,
		UM1Particles:    *raw.UM1Particles,
		UM2_5Particles:  *raw.UM2_5Particles,
		UM5Particles:    *raw.UM5Particles,
		UM10Particles:   *raw.UM10Particles,
	}, nil
}
