// Package transit holds the read-only bus, landmark and room catalog that
// backs search, the guide prompts and the assistant's system instruction.
//
// The catalog is loaded once and never mutated, so a *Catalog is safe for
// concurrent use without locking.
package transit

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nammaroute/companion/internal/transit/phonetic"
)

//go:embed data.yaml
var defaultData []byte

// ErrNotFound is returned when an ID or name does not resolve to a catalog
// entry.
var ErrNotFound = errors.New("transit: not found")

// Crowding is the coarse occupancy level of a bus.
type Crowding string

const (
	CrowdingLow    Crowding = "low"
	CrowdingMedium Crowding = "medium"
	CrowdingHigh   Crowding = "high"
)

// IsValid reports whether c is one of the known crowding levels.
func (c Crowding) IsValid() bool {
	switch c {
	case CrowdingLow, CrowdingMedium, CrowdingHigh:
		return true
	}
	return false
}

// Seats is the seat availability of a bus.
type Seats struct {
	Men   int `yaml:"men" json:"men"`
	Women int `yaml:"women" json:"women"`
	Total int `yaml:"total" json:"total"`
}

// Stop is one stop on a bus route.
type Stop struct {
	Name   string `yaml:"name" json:"name"`
	Time   string `yaml:"time" json:"time"`
	Passed bool   `yaml:"passed" json:"passed"`
}

// Bus is a scheduled bus run.
type Bus struct {
	ID          string   `yaml:"id" json:"id"`
	Number      string   `yaml:"number" json:"number"`
	Origin      string   `yaml:"origin" json:"origin"`
	Destination string   `yaml:"destination" json:"destination"`
	CurrentStop string   `yaml:"current_stop" json:"current_stop"`
	ETA         string   `yaml:"eta" json:"eta"`
	Distance    string   `yaml:"distance" json:"distance"`
	Departure   string   `yaml:"departure" json:"departure"`
	Arrival     string   `yaml:"arrival" json:"arrival"`
	Fare        int      `yaml:"fare" json:"fare"`
	Crowding    Crowding `yaml:"crowding" json:"crowding"`
	Seats       Seats    `yaml:"seats" json:"seats"`
	Stops       []Stop   `yaml:"stops" json:"stops"`
}

// NextStop returns the first stop that has not been passed yet.
func (b Bus) NextStop() (Stop, bool) {
	for _, s := range b.Stops {
		if !s.Passed {
			return s, true
		}
	}
	return Stop{}, false
}

// Landmark is a point of interest the tourist guide can describe.
type Landmark struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Lat         float64 `yaml:"lat" json:"lat"`
	Lng         float64 `yaml:"lng" json:"lng"`
	GuideNumber string  `yaml:"guide_number" json:"guide_number"`
	State       string  `yaml:"state" json:"state"`
	District    string  `yaml:"district" json:"district"`
	Village     string  `yaml:"village" json:"village"`
}

// Room is a budget room listing.
type Room struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Location  string   `yaml:"location" json:"location"`
	Rent      int      `yaml:"rent" json:"rent"`
	Rating    float64  `yaml:"rating" json:"rating"`
	Amenities []string `yaml:"amenities" json:"amenities"`
}

type document struct {
	Buses     []Bus      `yaml:"buses"`
	Landmarks []Landmark `yaml:"landmarks"`
	Rooms     []Room     `yaml:"rooms"`
}

// Catalog is the loaded transit data.
type Catalog struct {
	buses     []Bus
	landmarks []Landmark
	rooms     []Room
	matcher   *phonetic.Matcher
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("transit: embedded catalog: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transit: open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a catalog from r. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("transit: catalog is empty")
		}
		return nil, fmt.Errorf("transit: decode catalog: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &Catalog{
		buses:     doc.Buses,
		landmarks: doc.Landmarks,
		rooms:     doc.Rooms,
		matcher:   phonetic.New(),
	}, nil
}

// Parse is [Load] over an in-memory document.
func Parse(data []byte) (*Catalog, error) {
	return Load(bytes.NewReader(data))
}

func (d *document) validate() error {
	var errs []error
	seen := make(map[string]struct{})
	unique := func(kind, id string, i int) {
		if id == "" {
			errs = append(errs, fmt.Errorf("%s[%d]: id is required", kind, i))
			return
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%s[%d]: duplicate id %q", kind, i, id))
		}
		seen[id] = struct{}{}
	}

	for i, b := range d.Buses {
		unique("buses", b.ID, i)
		if b.Number == "" {
			errs = append(errs, fmt.Errorf("buses[%d]: number is required", i))
		}
		if b.Crowding != "" && !b.Crowding.IsValid() {
			errs = append(errs, fmt.Errorf("buses[%d]: unknown crowding %q", i, b.Crowding))
		}
	}
	for i, l := range d.Landmarks {
		unique("landmarks", l.ID, i)
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("landmarks[%d]: name is required", i))
		}
	}
	for i, r := range d.Rooms {
		unique("rooms", r.ID, i)
		if r.Rent < 0 {
			errs = append(errs, fmt.Errorf("rooms[%d]: rent must be >= 0", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("transit: invalid catalog: %w", errors.Join(errs...))
}
