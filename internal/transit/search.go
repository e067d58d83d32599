package transit

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Query filters a bus search. Empty fields match everything.
type Query struct {
	Origin      string
	Destination string
	SortByETA   bool
}

// SearchBuses returns the buses whose origin and destination equal the query
// values exactly. With SortByETA the result is ordered by ETA minutes,
// keeping catalog order among equal ETAs.
func (c *Catalog) SearchBuses(q Query) []Bus {
	var out []Bus
	for _, b := range c.buses {
		if q.Origin != "" && b.Origin != q.Origin {
			continue
		}
		if q.Destination != "" && b.Destination != q.Destination {
			continue
		}
		out = append(out, cloneBus(b))
	}
	if q.SortByETA {
		sort.SliceStable(out, func(i, j int) bool {
			return ETAMinutes(out[i].ETA) < ETAMinutes(out[j].ETA)
		})
	}
	return out
}

// ETAMinutes parses the leading integer of an ETA such as "5 mins".
// Unparsable values count as 0.
func ETAMinutes(eta string) int {
	s := strings.TrimSpace(eta)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Buses returns every bus in catalog order.
func (c *Catalog) Buses() []Bus { return c.SearchBuses(Query{}) }

// Bus returns the bus with the given ID.
func (c *Catalog) Bus(id string) (Bus, error) {
	for _, b := range c.buses {
		if b.ID == id {
			return cloneBus(b), nil
		}
	}
	return Bus{}, fmt.Errorf("bus %q: %w", id, ErrNotFound)
}

// Landmarks returns every landmark in catalog order.
func (c *Catalog) Landmarks() []Landmark { return slices.Clone(c.landmarks) }

// Landmark returns the landmark with the given ID.
func (c *Catalog) Landmark(id string) (Landmark, error) {
	for _, l := range c.landmarks {
		if l.ID == id {
			return l, nil
		}
	}
	return Landmark{}, fmt.Errorf("landmark %q: %w", id, ErrNotFound)
}

// FindLandmark resolves a spoken or misspelled landmark name.
func (c *Catalog) FindLandmark(name string) (Landmark, error) {
	names := make([]string, len(c.landmarks))
	for i, l := range c.landmarks {
		names[i] = l.Name
	}
	match, _, ok := c.matcher.Match(name, names)
	if ok {
		for _, l := range c.landmarks {
			if l.Name == match {
				return l, nil
			}
		}
	}
	return Landmark{}, fmt.Errorf("landmark %q: %w", name, ErrNotFound)
}

// ResolveStop maps a loosely spelled stop name onto the catalog spelling so
// it can be used in an exact [Query].
func (c *Catalog) ResolveStop(name string) (string, error) {
	match, _, ok := c.matcher.Match(name, c.stopNames())
	if !ok {
		return "", fmt.Errorf("stop %q: %w", name, ErrNotFound)
	}
	return match, nil
}

// Rooms returns rooms whose rent is at most maxRent. A maxRent <= 0 returns
// every room.
func (c *Catalog) Rooms(maxRent int) []Room {
	var out []Room
	for _, r := range c.rooms {
		if maxRent > 0 && r.Rent > maxRent {
			continue
		}
		r.Amenities = slices.Clone(r.Amenities)
		out = append(out, r)
	}
	return out
}

// Origins returns the distinct bus origins in first-seen order.
func (c *Catalog) Origins() []string {
	return distinct(c.buses, func(b Bus) string { return b.Origin })
}

// Destinations returns the distinct bus destinations in first-seen order.
func (c *Catalog) Destinations() []string {
	return distinct(c.buses, func(b Bus) string { return b.Destination })
}

func (c *Catalog) stopNames() []string {
	var names []string
	seen := make(map[string]struct{})
	add := func(n string) {
		if _, ok := seen[n]; ok || n == "" {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for _, b := range c.buses {
		add(b.Origin)
		add(b.Destination)
		for _, s := range b.Stops {
			add(s.Name)
		}
	}
	return names
}

func distinct(buses []Bus, key func(Bus) string) []string {
	var out []string
	for _, b := range buses {
		k := key(b)
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

func cloneBus(b Bus) Bus {
	b.Stops = slices.Clone(b.Stops)
	return b
}

// BusSummary is the compact bus view shared with the voice assistant.
type BusSummary struct {
	Number      string `json:"number"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	ETA         string `json:"eta"`
}

// Snapshot is a compact read-only view of the catalog.
type Snapshot struct {
	Buses     []BusSummary `json:"buses"`
	Landmarks []string     `json:"landmarks"`
}

// Snapshot returns the compact view.
func (c *Catalog) Snapshot() Snapshot {
	s := Snapshot{
		Buses:     make([]BusSummary, 0, len(c.buses)),
		Landmarks: make([]string, 0, len(c.landmarks)),
	}
	for _, b := range c.buses {
		s.Buses = append(s.Buses, BusSummary{
			Number:      b.Number,
			Origin:      b.Origin,
			Destination: b.Destination,
			ETA:         b.ETA,
		})
	}
	for _, l := range c.landmarks {
		s.Landmarks = append(s.Landmarks, l.Name)
	}
	return s
}

// BusesJSON renders the bus summaries as a JSON array.
func (s Snapshot) BusesJSON() string { return mustJSON(s.Buses) }

// LandmarksJSON renders the landmark names as a JSON array.
func (s Snapshot) LandmarksJSON() string { return mustJSON(s.Landmarks) }

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain strings and slices are marshalled here.
		panic(err)
	}
	return string(b)
}
