package geoindex

import (
	"github.com/uber/h3-go/v4"
)

// H3 resolution levels. See: https://h3geo.org/docs/core-library/restable
const (
	// H3ResolutionMatching is used for the secondary driver cell index
	// (~175m edge, ~0.11 km²).
	H3ResolutionMatching = 9

	// H3KRingMatching is the k-ring radius for the cell-based candidate
	// lookup. At resolution 9, k=4 covers roughly a 1.4 km radius.
	H3KRingMatching = 4
)

// LatLngToCell converts latitude/longitude to an H3 cell index at the given
// resolution. Coordinates are validated upstream; invalid input maps to the
// zero cell.
func LatLngToCell(lat, lng float64, resolution int) h3.Cell {
	latLng := h3.NewLatLng(lat, lng)
	cell, err := h3.LatLngToCell(latLng, resolution)
	if err != nil {
		return 0
	}
	return cell
}

// MatchingCell returns the H3 cell index (as string) used to bucket drivers
// for the secondary index.
func MatchingCell(lat, lng float64) string {
	return LatLngToCell(lat, lng, H3ResolutionMatching).String()
}

// KRingCells returns the H3 cells within k rings of the given point, as hex
// strings for Redis key usage. The origin cell is included.
func KRingCells(lat, lng float64, k int) []string {
	origin := LatLngToCell(lat, lng, H3ResolutionMatching)
	cells, err := origin.GridDisk(k)
	if err != nil {
		cells = []h3.Cell{origin}
	}
	result := make([]string, len(cells))
	for i, cell := range cells {
		result[i] = cell.String()
	}
	return result
}
