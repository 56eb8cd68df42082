package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/goride/dispatch/internal/geoindex"
	"github.com/goride/dispatch/pkg/geo"
	"github.com/goride/dispatch/pkg/logger"
)

// GeoIndex is the view of the driver position index the matcher needs.
type GeoIndex interface {
	Radius(ctx context.Context, center geoindex.Location, radiusKm float64, limit int) ([]geoindex.Candidate, error)
	Get(ctx context.Context, driverID int64, now time.Time) (*geoindex.Position, error)
}

// Matcher finds the nearest live driver to a pickup point.
type Matcher struct {
	index       GeoIndex
	searchLimit int
}

// New creates a matcher. searchLimit bounds how many radius candidates are
// re-verified per search.
func New(index GeoIndex, searchLimit int) *Matcher {
	return &Matcher{index: index, searchLimit: searchLimit}
}

// FindNearest returns the ID of the nearest driver within maxKm of pickup,
// or (0, false) when no driver qualifies. The radius query's distances are
// approximate, so every candidate is re-verified against its authoritative
// position before being returned; candidates that went stale or moved out of
// range between the two reads are skipped. A degraded index yields no driver
// rather than an error.
func (m *Matcher) FindNearest(ctx context.Context, pickup geoindex.Location, maxKm float64, now time.Time) (int64, bool, error) {
	candidates, err := m.index.Radius(ctx, pickup, maxKm, m.searchLimit)
	if err != nil {
		if errors.Is(err, geoindex.ErrDegraded) {
			logger.WarnContext(ctx, "matching degraded, treating as no candidates", zap.Error(err))
			return 0, false, nil
		}
		return 0, false, err
	}

	// Deterministic order: ascending distance, then ascending driver ID.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ApproxDistKm != candidates[j].ApproxDistKm {
			return candidates[i].ApproxDistKm < candidates[j].ApproxDistKm
		}
		return candidates[i].DriverID < candidates[j].DriverID
	})

	for _, c := range candidates {
		pos, err := m.index.Get(ctx, c.DriverID, now)
		if err != nil {
			logger.WarnContext(ctx, "failed to verify candidate position",
				zap.Int64("driver_id", c.DriverID), zap.Error(err))
			continue
		}
		if pos == nil {
			continue
		}

		dist := geo.Haversine(pickup.Lat, pickup.Lon, pos.Lat, pos.Lon)
		if dist <= maxKm {
			return c.DriverID, true, nil
		}
	}

	return 0, false, nil
}
