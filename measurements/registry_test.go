package measurements

import (
	"math"
	"testing"
	"time"

	"github.com/shipnav/nmearouter/nmea"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func feed(t *testing.T, r *Registry, source string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		s, err := nmea.ParseAt(nmea.AppendChecksum(l), t0)
		if err != nil {
			t.Fatalf("parse %s: %v", l, err)
		}
		r.OnNewSentence(source, s)
	}
}

func TestRegistry_ResolvesValues(t *testing.T) {
	r := NewRegistry()
	feed(t, r, "Ship",
		"$SDDPT,12.3,0.5",
		"$IIMTW,18.5,C",
		"$IIVHW,,T,,M,6.2,N,11.5,K",
		"$WIMWV,45.0,R,12.0,N,A",
		"$HCHDG,85.0,,,2.0,E",
		"$WIMWV,30.0,T,10.0,M,A",
		"$IIRSA,-5.0,A,,",
		"$TIROT,-12.5,A",
		"$IIVLW,1234.5,N,12.5,N",
	)
	feed(t, r, "Handheld", "$GPVTG,54.7,T,34.4,M,5.5,N,10.2,K,A")

	tests := []struct {
		name   string
		value  float64
		unit   string
		source string
	}{
		{Depth, 12.8, UnitMeters, "Ship"},
		{WaterTemperature, 18.5, UnitCelsius, "Ship"},
		{SpeedThroughWater, 6.2, UnitKnots, "Ship"},
		{ApparentWindSpeed, 12.0, UnitKnots, "Ship"},
		{ApparentWindAngle, 45.0, UnitDegrees, "Ship"},
		{Heading, 87.0, UnitDegrees, "Ship"},
		{TrueWindAngle, 30.0, UnitDegrees, "Ship"},
		{TrueWindSpeed, 10 * nmea.KnotsPerMeterPerSecond, UnitKnots, "Ship"},
		{TrueWindDirection, 117.0, UnitDegrees, "Ship"},
		{RudderAngle, -5.0, UnitDegrees, "Ship"},
		{RateOfTurn, -12.5, UnitDegPerMin, "Ship"},
		{Log, 1234.5, UnitNM, "Ship"},
		{TripLog, 12.5, UnitNM, "Ship"},
		{SpeedOverGround, 5.5, UnitKnots, "Handheld"},
		{CourseOverGround, 54.7, UnitDegrees, "Handheld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := r.Get(tt.name)
			if !ok {
				t.Fatalf("missing")
			}
			if math.Abs(m.Value-tt.value) > 1e-9 || m.Unit != tt.unit || m.Source != tt.source {
				t.Fatalf("got %+v", m)
			}
			if !m.Time.Equal(t0) {
				t.Fatalf("time = %v", m.Time)
			}
		})
	}
}

func TestRegistry_IgnoresVoidAndMissingFields(t *testing.T) {
	r := NewRegistry()
	feed(t, r, "Ship",
		"$WIMWV,45.0,R,12.0,N,V",
		"$IIVHW,,T,,M,6.2,N,11.5,K",
	)
	if _, ok := r.Get(ApparentWindSpeed); ok {
		t.Fatalf("void wind reading stored")
	}
	if _, ok := r.Get(Heading); ok {
		t.Fatalf("empty heading field stored")
	}
	if _, ok := r.Get(SpeedThroughWater); !ok {
		t.Fatalf("speed through water missing")
	}
}

func TestRegistry_Meteorological(t *testing.T) {
	r := NewRegistry()
	feed(t, r, "Ship", "$WIMDA,29.92,I,1.0132,B,21.5,C,,C,65.0,,,C,,T,,M,,N,,M")
	if m, _ := r.Get(Pressure); math.Abs(m.Value-1013.2) > 1e-9 {
		t.Fatalf("pressure = %v", m.Value)
	}
	if m, _ := r.Get(AirTemperature); m.Value != 21.5 {
		t.Fatalf("air temperature = %v", m.Value)
	}
	if m, _ := r.Get(Humidity); m.Value != 65 {
		t.Fatalf("humidity = %v", m.Value)
	}
	if _, ok := r.Get(WaterTemperature); ok {
		t.Fatalf("empty water temperature stored")
	}
}

func TestRegistry_Transducers(t *testing.T) {
	r := NewRegistry()
	feed(t, r, "Ship", "$IIXDR,P,1.0132,B,Barometer,C,19.5,C,AirTemp,T,1850,R,ENGINE#0,C,82.0,C,ENGINE#0_COOLANT")

	if m, _ := r.Get(Pressure); math.Abs(m.Value-1013.2) > 1e-9 {
		t.Fatalf("pressure = %v", m.Value)
	}
	if m, _ := r.Get(AirTemperature); m.Value != 19.5 {
		t.Fatalf("air temperature = %v", m.Value)
	}
	rpm, ok := r.Get(TransducerPrefix + "ENGINE#0")
	if !ok || rpm.Value != 1850 || rpm.Unit != "rpm" {
		t.Fatalf("engine rpm = %+v", rpm)
	}
	coolant, ok := r.Get(TransducerPrefix + "ENGINE#0_COOLANT")
	if !ok || coolant.Value != 82 || coolant.Unit != UnitCelsius {
		t.Fatalf("coolant = %+v", coolant)
	}
}

func TestRegistry_AllAndFresh(t *testing.T) {
	r := NewRegistry()
	now := t0.Add(10 * time.Second)
	r.now = func() time.Time { return now }

	feed(t, r, "Ship", "$IIMTW,18.5,C", "$SDDBT,40.4,f,12.3,M,6.7,F")
	all := r.All()
	if len(all) != 2 || all[0].Name != Depth || all[1].Name != WaterTemperature {
		t.Fatalf("all = %+v", all)
	}
	if got := r.Fresh(5 * time.Second); len(got) != 0 {
		t.Fatalf("fresh = %+v", got)
	}
	if got := r.Fresh(time.Minute); len(got) != 2 {
		t.Fatalf("fresh = %+v", got)
	}
}

func TestMeasurement_Formatted(t *testing.T) {
	tests := []struct {
		m    Measurement
		want string
	}{
		{Measurement{Value: 12.3, Unit: UnitMeters}, "12.3 m"},
		{Measurement{Value: 1013.2, Unit: UnitHPa}, "1,013.2 hPa"},
		{Measurement{Value: 274.1, Unit: UnitDegrees}, "274°"},
		{Measurement{Value: 1234.5, Unit: UnitNM}, "1,234.50 NM"},
		{Measurement{Value: 6.2, Unit: UnitKnots}, "6.2 kn"},
		{Measurement{Value: 65, Unit: UnitPercent}, "65 %"},
		{Measurement{Value: 1850}, "1,850.0"},
	}
	for _, tt := range tests {
		if got := tt.m.Formatted(); got != tt.want {
			t.Errorf("Formatted(%v %s) = %q, want %q", tt.m.Value, tt.m.Unit, got, tt.want)
		}
	}
}
