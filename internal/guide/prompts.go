package guide

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nammaroute/companion/internal/locale"
)

// DefaultReportType is used when a safety report does not name its type.
const DefaultReportType = "General Safety Concern"

const (
	touristTemperature   = 0.7
	itineraryTemperature = 0.6
)

var titleCase = cases.Title(language.Und)

func touristPrompt(landmark, lang string) string {
	return fmt.Sprintf(`Generate a "Tourist Mode" description for %s in Tamil Nadu. `+
		`Include historical significance, best time to visit, and a short "did you know" fact. `+
		`Provide the response in %s.`, landmark, locale.Name(lang))
}

func itineraryPrompt(city, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed \"Full Day Trip\" itinerary for %s, Tamil Nadu.\n", titleCase.String(city))
	b.WriteString("For each phase of the day (Morning, Afternoon, Evening), please include:\n")
	b.WriteString("1. **Destination**: A must-visit landmark.\n")
	b.WriteString("2. **Plan Route**: Specific bus numbers (e.g., #21G, #1A) and the best route to take.\n")
	b.WriteString("3. **Dining Shop**: A specific, famous local restaurant or shop for the corresponding meal " +
		"(Breakfast, Lunch, or Dinner) with a recommended dish.\n\n")
	b.WriteString("Format the output in clear Markdown with bold headings for each phase.\n")
	fmt.Fprintf(&b, "Provide the response in %s.", locale.Name(lang))
	return b.String()
}

func safetyPrompt(lat, lng float64, reportType string) string {
	return fmt.Sprintf(`A safety alert of type "%s" was triggered at coordinates %s, %s. `+
		`Identify the nearest police station or transport authority in Tamil Nadu for this location `+
		`and describe the protocol for an anonymous report.`,
		reportType, formatCoord(lat), formatCoord(lng))
}

// formatCoord prints a coordinate with the fewest digits that round-trip.
func formatCoord(v float64) string {
	return fmt.Sprintf("%g", v)
}
