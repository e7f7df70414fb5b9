// Package impact computes the environmental savings attributed to reusing a
// garment instead of producing a new one. Figures come from a static
// per-category table, optionally scaled by the garment weight, and are turned
// into everyday equivalences (trees, car kilometres, showers, ...).
//
// Everything here is pure and safe for concurrent use.
package impact

import (
	"math"
	"strings"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// ReferenceWeightKg is the garment weight the table figures correspond to.
const ReferenceWeightKg = 0.5

// Figures is the (carbon, energy, water) triple avoided by one garment.
type Figures struct {
	CarbonKg  float64 `json:"carbon_kg"`
	EnergyKWh float64 `json:"energy_kwh"`
	WaterL    float64 `json:"water_l"`
}

// Add returns the component-wise sum of f and o.
func (f Figures) Add(o Figures) Figures {
	return Figures{
		CarbonKg:  f.CarbonKg + o.CarbonKg,
		EnergyKWh: f.EnergyKWh + o.EnergyKWh,
		WaterL:    f.WaterL + o.WaterL,
	}
}

// Rounded applies the storage precision: 2 decimals for carbon and energy,
// whole litres for water.
func (f Figures) Rounded() Figures {
	return Figures{
		CarbonKg:  round(f.CarbonKg, 2),
		EnergyKWh: round(f.EnergyKWh, 2),
		WaterL:    round(f.WaterL, 0),
	}
}

var table = map[domain.Category]Figures{
	domain.CategoryShirt:       {CarbonKg: 5.5, EnergyKWh: 2.7, WaterL: 2700},
	domain.CategoryPants:       {CarbonKg: 11.0, EnergyKWh: 5.5, WaterL: 7600},
	domain.CategoryDress:       {CarbonKg: 8.0, EnergyKWh: 4.0, WaterL: 4000},
	domain.CategoryJacket:      {CarbonKg: 15.0, EnergyKWh: 8.0, WaterL: 6000},
	domain.CategoryShoes:       {CarbonKg: 13.5, EnergyKWh: 7.0, WaterL: 8000},
	domain.CategoryAccessories: {CarbonKg: 3.0, EnergyKWh: 1.5, WaterL: 1000},
}

var fallback = Figures{CarbonKg: 8.0, EnergyKWh: 4.0, WaterL: 4000}

// ForCategory returns the rounded figures for a garment of category c. When
// weightKg is positive the table values are scaled by weightKg/ReferenceWeightKg.
// Unknown categories use the generic fallback row.
func ForCategory(c domain.Category, weightKg *float64) Figures {
	base, ok := table[c]
	if !ok {
		base = fallback
	}
	factor := 1.0
	if weightKg != nil && *weightKg > 0 {
		factor = *weightKg / ReferenceWeightKg
	}
	return Figures{
		CarbonKg:  base.CarbonKg * factor,
		EnergyKWh: base.EnergyKWh * factor,
		WaterL:    base.WaterL * factor,
	}.Rounded()
}

// Equivalences expresses figures as everyday quantities.
type Equivalences struct {
	TreesYear       float64 `json:"trees_year"`
	CarKm           float64 `json:"car_km"`
	FlightKm        float64 `json:"flight_km"`
	BulbHours       float64 `json:"bulb_hours"`
	PhoneCharges    float64 `json:"phone_charges"`
	HomeDays        float64 `json:"home_days"`
	Showers         float64 `json:"showers"`
	WaterBottles    float64 `json:"water_bottles"`
	PersonWaterDays float64 `json:"person_water_days"`
}

// Equivalent converts figures into equivalences. Inputs are rounded to
// storage precision first, so a stored triple always reproduces the values
// computed when the listing was created.
func Equivalent(f Figures) Equivalences {
	f = f.Rounded()
	return Equivalences{
		TreesYear:       round(f.CarbonKg/20, 2),
		CarKm:           round(f.CarbonKg/0.12, 1),
		FlightKm:        round(f.CarbonKg/0.25, 1),
		BulbHours:       round(f.EnergyKWh/0.01, 0),
		PhoneCharges:    round(f.EnergyKWh/0.01, 0),
		HomeDays:        round(f.EnergyKWh/300*30, 1),
		Showers:         round(f.WaterL/100, 1),
		WaterBottles:    round(f.WaterL/0.5, 0),
		PersonWaterDays: round(f.WaterL/2, 0),
	}
}

// TransportDistanceKm is the assumed delivery distance of a shipment.
const TransportDistanceKm = 15.0

// Transport estimates the carbon emitted delivering a shipment with the
// named courier. The vehicle is inferred from the courier name.
func Transport(courier string) Figures {
	return Figures{CarbonKg: round(TransportDistanceKm*vehicleFactor(courier), 2)}
}

func vehicleFactor(courier string) float64 {
	c := strings.ToLower(courier)
	switch {
	case strings.Contains(c, "moto"):
		return 0.08
	case strings.Contains(c, "van"), strings.Contains(c, "furgon"), strings.Contains(c, "furgón"):
		return 0.18
	case strings.Contains(c, "camion"), strings.Contains(c, "camión"):
		return 0.25
	default:
		return 0.12
	}
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
