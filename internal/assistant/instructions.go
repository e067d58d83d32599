package assistant

import (
	"fmt"
	"strings"

	"github.com/nammaroute/companion/internal/locale"
	"github.com/nammaroute/companion/internal/transit"
)

const unknownLocation = "Unknown (using Chennai as default)"

// Instructions renders the system instruction for a new session from the
// user's language, optional location and the transit catalog snapshot.
func Instructions(lang string, loc *Location, snap transit.Snapshot) string {
	where := unknownLocation
	if loc != nil {
		where = fmt.Sprintf("Lat: %g, Lng: %g", loc.Lat, loc.Lng)
	}

	var b strings.Builder
	b.WriteString("You are Namma Route's accessibility assistant for blind and visually impaired users.\n")
	b.WriteString("Your goal is to help them navigate the app and get real-time transit information.\n")
	b.WriteString("Current context:\n")
	fmt.Fprintf(&b, "- Language: %s\n", locale.Name(lang))
	fmt.Fprintf(&b, "- Current Location: %s\n", where)
	fmt.Fprintf(&b, "- Available buses: %s\n", snap.BusesJSON())
	fmt.Fprintf(&b, "- Available landmarks: %s\n\n", snap.LandmarksJSON())
	b.WriteString("Provide clear, concise, and descriptive audio guidance. Use a helpful and calm tone.\n")
	b.WriteString("If they ask about a bus, tell them the ETA and route.\n")
	b.WriteString("If they ask where they are, use their current coordinates if available, otherwise use Chennai.\n")
	b.WriteString("Always confirm actions with voice.")
	return b.String()
}
