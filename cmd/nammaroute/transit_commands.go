package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nammaroute/companion/internal/transit"
)

func newBusesCommand(ctx *commandContext) *cobra.Command {
	var (
		from, to string
		byETA    bool
	)
	cmd := &cobra.Command{
		Use:   "buses [id]",
		Short: "List buses, or show one bus with its stops",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				bus, err := cat.Bus(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderBus(bus))
				return nil
			}

			q := transit.Query{SortByETA: byETA}
			// Spoken or misspelt stop names resolve to the catalog spelling.
			if q.Origin, err = resolveStop(cat, from); err != nil {
				return err
			}
			if q.Destination, err = resolveStop(cat, to); err != nil {
				return err
			}
			buses := cat.SearchBuses(q)
			if len(buses) == 0 {
				fmt.Fprintln(out, "No buses found.")
				return nil
			}
			fmt.Fprintln(out, renderBuses(buses))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "origin stop")
	cmd.Flags().StringVar(&to, "to", "", "destination stop")
	cmd.Flags().BoolVar(&byETA, "sort-eta", false, "sort by arrival time")
	return cmd
}

func resolveStop(cat *transit.Catalog, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	stop, err := cat.ResolveStop(name)
	if errors.Is(err, transit.ErrNotFound) {
		return "", fmt.Errorf("unknown stop %q", name)
	}
	return stop, err
}

var busColumns = []column[transit.Bus]{
	{header: "ID", value: func(b transit.Bus) string { return b.ID }},
	{header: "Bus", value: func(b transit.Bus) string { return b.Number }},
	{header: "From", value: func(b transit.Bus) string { return b.Origin }},
	{header: "To", value: func(b transit.Bus) string { return b.Destination }},
	{header: "Now at", value: func(b transit.Bus) string { return b.CurrentStop }},
	{header: "ETA", numeric: true, value: func(b transit.Bus) string { return b.ETA }},
	{header: "Fare", numeric: true, value: func(b transit.Bus) string { return rupees(b.Fare) }},
	{header: "Crowding", value: func(b transit.Bus) string { return string(b.Crowding) }},
	{header: "Seats M/W/T", numeric: true, value: func(b transit.Bus) string {
		return fmt.Sprintf("%d/%d/%d", b.Seats.Men, b.Seats.Women, b.Seats.Total)
	}},
}

func renderBuses(buses []transit.Bus) string { return renderTable(busColumns, buses) }

func renderBus(b transit.Bus) string {
	next, hasNext := b.NextStop()
	cols := []column[transit.Stop]{
		{header: "Stop", value: func(s transit.Stop) string { return s.Name }},
		{header: "Time", value: func(s transit.Stop) string { return s.Time }},
		{header: "", value: func(s transit.Stop) string {
			switch {
			case s.Passed:
				return "passed"
			case hasNext && next.Name == s.Name:
				return "next"
			}
			return ""
		}},
	}
	title := fmt.Sprintf("Bus %s: %s → %s (%s, departs %s, arrives %s)",
		b.Number, b.Origin, b.Destination, b.ETA, b.Departure, b.Arrival)
	return title + "\n" + renderTable(cols, b.Stops)
}

func newLandmarksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "landmarks [name]",
		Short: "List landmarks, or find one by a loosely spelt name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.catalog()
			if err != nil {
				return err
			}
			landmarks := cat.Landmarks()
			if len(args) == 1 {
				lm, err := cat.FindLandmark(args[0])
				if err != nil {
					return err
				}
				landmarks = []transit.Landmark{lm}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(landmarkColumns, landmarks))
			return nil
		},
	}
}

func newRoomsCommand(ctx *commandContext) *cobra.Command {
	var maxRent int
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List budget rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := ctx.catalog()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(roomColumns, cat.Rooms(maxRent)))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxRent, "max-rent", 0, "only rooms at or below this rent (0 for all)")
	return cmd
}

var landmarkColumns = []column[transit.Landmark]{
	{header: "ID", value: func(l transit.Landmark) string { return l.ID }},
	{header: "Name", value: func(l transit.Landmark) string { return l.Name }},
	{header: "District", value: func(l transit.Landmark) string { return l.District }},
	{header: "Guide", value: func(l transit.Landmark) string { return l.GuideNumber }},
}

var roomColumns = []column[transit.Room]{
	{header: "Name", value: func(r transit.Room) string { return r.Name }},
	{header: "Location", value: func(r transit.Room) string { return r.Location }},
	{header: "Rent", numeric: true, value: func(r transit.Room) string { return rupees(r.Rent) }},
	{header: "Rating", numeric: true, value: func(r transit.Room) string { return strconv.FormatFloat(r.Rating, 'f', 1, 64) }},
	{header: "Amenities", value: func(r transit.Room) string { return strings.Join(r.Amenities, ", ") }},
}
