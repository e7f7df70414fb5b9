package impact

import (
	"fmt"
	"strconv"
)

// Describe renders equivalences as short Spanish phrases for display.
func Describe(e Equivalences) []string {
	return []string{
		fmt.Sprintf("%s árbol(es) absorbiendo CO2 durante 1 año", num(e.TreesYear)),
		fmt.Sprintf("%s km sin conducir un auto", num(e.CarKm)),
		fmt.Sprintf("%s km sin volar en avión", num(e.FlightKm)),
		fmt.Sprintf("%s horas de una ampolleta encendida", num(e.BulbHours)),
		fmt.Sprintf("%s cargas de celular", num(e.PhoneCharges)),
		fmt.Sprintf("%s día(s) de energía de un hogar", num(e.HomeDays)),
		fmt.Sprintf("%s duchas de 10 minutos", num(e.Showers)),
		fmt.Sprintf("%s botellas de agua de 500 ml", num(e.WaterBottles)),
		fmt.Sprintf("%s días de agua potable para una persona", num(e.PersonWaterDays)),
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
