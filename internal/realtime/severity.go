package realtime

import (
	"fmt"
	"math"
	"strconv"
)

// Severity grades an alert.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Device-environment statuses.
const (
	StatusNoFood   = "sin_comida"
	StatusNoWater  = "sin_agua"
	StatusNoLitter = "sin_arena"
	StatusDirty    = "sucio"
	StatusSupplied = "abastecido"
	StatusFull     = "lleno"
)

// Device types.
const (
	TypeFeeder    = "comedero"
	TypeWaterer   = "bebedero"
	TypeLitterBox = "arenero"
)

// DefaultLowFoodThreshold is the gram level at or below which a feeder
// raises low_food_alert.
const DefaultLowFoodThreshold = 50.0

var statusSeverity = map[string]Severity{
	StatusNoFood:   SeverityCritical,
	StatusNoWater:  SeverityCritical,
	StatusNoLitter: SeverityHigh,
	StatusDirty:    SeverityHigh,
	StatusSupplied: SeverityLow,
	StatusFull:     SeverityMedium,
}

// SeverityFor maps a status to its alert severity. Unknown statuses are medium.
func SeverityFor(status string) Severity {
	if s, ok := statusSeverity[status]; ok {
		return s
	}
	return SeverityMedium
}

// IsAlertStatus reports whether a status change also raises critical_alert.
func IsAlertStatus(status string) bool {
	switch status {
	case StatusNoFood, StatusNoWater, StatusNoLitter, StatusDirty:
		return true
	}
	return false
}

// deviceNoun names the device in alert text. Unknown types read as arenero.
func deviceNoun(deviceType string) string {
	switch deviceType {
	case TypeFeeder, TypeWaterer:
		return deviceType
	default:
		return TypeLitterBox
	}
}

// AlertMessage is the human text of a critical_alert.
func AlertMessage(deviceType, status string) string {
	name := deviceNoun(deviceType)
	switch status {
	case StatusNoFood:
		return fmt.Sprintf("¡Atención! El %s está sin comida", name)
	case StatusNoWater:
		return fmt.Sprintf("¡Atención! El %s está sin agua", name)
	case StatusNoLitter:
		return fmt.Sprintf("¡Atención! El %s está sin arena", name)
	case StatusDirty:
		return fmt.Sprintf("¡Atención! El %s está sucio y necesita limpieza", name)
	case StatusSupplied:
		return fmt.Sprintf("El %s ha sido abastecido correctamente", name)
	case StatusFull:
		return fmt.Sprintf("El %s está lleno", name)
	default:
		return fmt.Sprintf("Estado del %s actualizado a %s", name, status)
	}
}

// LowFoodSeverity grades a feeder's remaining grams.
func LowFoodSeverity(grams float64) Severity {
	switch {
	case grams <= 0:
		return SeverityCritical
	case grams <= 20:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// LowFoodMessage is the human text of a low_food_alert.
func LowFoodMessage(alias string, grams float64) string {
	switch {
	case grams <= 0:
		return fmt.Sprintf("¡CRÍTICO! %s está completamente sin comida", alias)
	case grams <= 20:
		return fmt.Sprintf("¡ALERTA! %s tiene muy poca comida (%sg)", alias, formatGrams(grams))
	default:
		return fmt.Sprintf("AVISO: %s tiene poca comida (%sg)", alias, formatGrams(grams))
	}
}

// FoodDifference is the change reported in food_updated. A missing or
// zero previous amount reports the new amount itself.
func FoodDifference(grams float64, previous *float64) float64 {
	if previous == nil || *previous == 0 {
		return grams
	}
	return grams - *previous
}

// FoodUpdateMessage is the human text of a food_updated event.
func FoodUpdateMessage(alias string, grams float64, previous *float64) string {
	if previous == nil {
		return fmt.Sprintf("%s: comida configurada a %sg", alias, formatGrams(grams))
	}

	diff := grams - *previous
	switch {
	case diff > 0:
		return fmt.Sprintf("%s: se agregaron %sg de comida (total: %sg)", alias, formatGrams(diff), formatGrams(grams))
	case diff < 0:
		return fmt.Sprintf("%s: se consumieron %sg de comida (quedan: %sg)", alias, formatGrams(math.Abs(diff)), formatGrams(grams))
	default:
		return fmt.Sprintf("%s: cantidad de comida actualizada (%sg)", alias, formatGrams(grams))
	}
}

// HoursFromMinutes converts minutes to hours rounded to two decimals.
func HoursFromMinutes(minutes int) float64 {
	return math.Round(float64(minutes)/60*100) / 100
}

func formatGrams(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}
