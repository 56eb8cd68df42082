package geoindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/goride/dispatch/pkg/common"
	"github.com/goride/dispatch/pkg/logger"
	redisclient "github.com/goride/dispatch/pkg/redis"
)

const (
	driverPositionPrefix = "driver:pos:"
	driverGeoIndexKey    = "drivers:geo:index"
	driverCellPrefix     = "driver:h3cell:"
	cellDriversPrefix    = "h3:drivers:"
)

// ErrDegraded signals that a radius query could not consult the backing
// store. Callers treat the (empty) result as "no candidates" rather than an
// error, so a flaky index degrades matching instead of failing rides.
var ErrDegraded = errors.New("geo index degraded")

// Position is a driver's live position.
type Position struct {
	DriverID  int64     `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	H3Cell    string    `json:"h3_cell"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate is a radius query hit with the index's approximate distance.
// The distance comes from the GEO encoding and must be re-verified against
// the authoritative position before use.
type Candidate struct {
	DriverID     int64
	ApproxDistKm float64
}

// Index is the live registry of driver positions, backed by Redis. The
// position hash is authoritative and carries a freshness TTL; the GEO sorted
// set and the per-cell H3 driver sets are secondary indexes that Sweep keeps
// in line.
type Index struct {
	redis          redisclient.ClientInterface
	maxPositionAge time.Duration
}

// New creates a geo index. maxPositionAge is the freshness window after which
// a recorded position is treated as absent.
func New(redis redisclient.ClientInterface, maxPositionAge time.Duration) *Index {
	return &Index{redis: redis, maxPositionAge: maxPositionAge}
}

// Upsert records a driver position, timestamps it and (re)arms the freshness TTL.
func (i *Index) Upsert(ctx context.Context, driverID int64, lat, lon float64, now time.Time) error {
	cell := MatchingCell(lat, lon)
	pos := Position{
		DriverID:  driverID,
		Lat:       lat,
		Lon:       lon,
		H3Cell:    cell,
		UpdatedAt: now.UTC(),
	}

	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	member := strconv.FormatInt(driverID, 10)

	if err := i.redis.SetWithExpiration(ctx, positionKey(driverID), data, i.maxPositionAge); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	if err := i.redis.GeoAdd(ctx, driverGeoIndexKey, lon, lat, member); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	i.updateCellIndex(ctx, driverID, cell)

	return nil
}

// updateCellIndex maintains the per-cell driver sets. When the driver moved
// to a new cell, its membership in the old cell is dropped first.
func (i *Index) updateCellIndex(ctx context.Context, driverID int64, newCell string) {
	member := strconv.FormatInt(driverID, 10)
	prevCellKey := driverCellPrefix + member

	prevCell, err := i.redis.GetString(ctx, prevCellKey)
	if err == nil && prevCell != "" && prevCell != newCell {
		_ = i.redis.SetRemove(ctx, cellKey(prevCell), member)
	}

	_ = i.redis.SetWithExpiration(ctx, prevCellKey, newCell, i.maxPositionAge)
	_ = i.redis.SetAdd(ctx, cellKey(newCell), member)
	_ = i.redis.Expire(ctx, cellKey(newCell), i.maxPositionAge)
}

// Get returns the driver's position if it is fresher than MaxPositionAge.
// A stale or missing entry returns (nil, nil); the stale secondary index
// entry is removed as a side effect.
func (i *Index) Get(ctx context.Context, driverID int64, now time.Time) (*Position, error) {
	data, err := i.redis.GetString(ctx, positionKey(driverID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// TTL already dropped the authoritative key; drop the
			// secondary entries too.
			i.evictSecondary(ctx, driverID)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	var pos Position
	if err := json.Unmarshal([]byte(data), &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}

	if now.Sub(pos.UpdatedAt) > i.maxPositionAge {
		if err := i.Evict(ctx, driverID); err != nil {
			logger.WarnContext(ctx, "failed to evict stale driver position",
				zap.Int64("driver_id", driverID), zap.Error(err))
		}
		return nil, nil
	}

	return &pos, nil
}

// Radius returns up to limit drivers within radiusKm of the center, ordered
// by increasing distance. When the GEO query fails, the H3 cell sets around
// the center serve as a fallback candidate source; only when both paths fail
// is the result wrapped in ErrDegraded so the caller can degrade
// deterministically.
func (i *Index) Radius(ctx context.Context, center Location, radiusKm float64, limit int) ([]Candidate, error) {
	members, err := i.redis.GeoRadius(ctx, driverGeoIndexKey, center.Lon, center.Lat, radiusKm, limit)
	if err != nil {
		logger.WarnContext(ctx, "geo radius query failed, consulting cell index", zap.Error(err))
		candidates, cellErr := i.cellCandidates(ctx, center, limit)
		if cellErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegraded, err)
		}
		return candidates, nil
	}

	candidates := make([]Candidate, 0, len(members))
	for _, m := range members {
		driverID, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{DriverID: driverID, ApproxDistKm: m.DistKm})
	}

	return candidates, nil
}

// cellCandidates collects driver IDs from the H3 cell sets within the
// matching k-ring of the center. Cell membership carries no distance, so the
// reported distance is zero and the caller's position re-verification
// establishes the real one. Results are deterministic by ascending driver ID.
func (i *Index) cellCandidates(ctx context.Context, center Location, limit int) ([]Candidate, error) {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0, limit)

	for _, cell := range KRingCells(center.Lat, center.Lon, H3KRingMatching) {
		members, err := i.redis.SetMembers(ctx, cellKey(cell))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
		}
		for _, m := range members {
			driverID, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				continue
			}
			if _, ok := seen[driverID]; !ok {
				seen[driverID] = struct{}{}
				ids = append(ids, driverID)
			}
		}
	}

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, Candidate{DriverID: id})
	}

	return candidates, nil
}

// Evict unconditionally removes a driver from the index.
func (i *Index) Evict(ctx context.Context, driverID int64) error {
	if err := i.redis.Delete(ctx, positionKey(driverID)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	i.evictSecondary(ctx, driverID)
	return nil
}

func (i *Index) evictSecondary(ctx context.Context, driverID int64) {
	member := strconv.FormatInt(driverID, 10)
	_ = i.redis.GeoRemove(ctx, driverGeoIndexKey, member)

	prevCellKey := driverCellPrefix + member
	if cell, err := i.redis.GetString(ctx, prevCellKey); err == nil && cell != "" {
		_ = i.redis.SetRemove(ctx, cellKey(cell), member)
	}
	_ = i.redis.Delete(ctx, prevCellKey)
}

// Sweep removes geo index entries whose authoritative position key has
// expired. The position keys carry their own TTL; sweeping is only needed to
// purge the secondary GEO and cell indexes. Returns the number of entries removed.
func (i *Index) Sweep(ctx context.Context, now time.Time) (int, error) {
	members, err := i.redis.GeoMembers(ctx, driverGeoIndexKey)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	removed := 0
	for _, member := range members {
		driverID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			_ = i.redis.GeoRemove(ctx, driverGeoIndexKey, member)
			removed++
			continue
		}

		pos, err := i.Get(ctx, driverID, now)
		if err != nil {
			return removed, err
		}
		if pos == nil {
			// Get already evicted the secondary entries.
			removed++
		}
	}

	return removed, nil
}

// Location is a geographic point used for radius queries.
type Location struct {
	Lat float64
	Lon float64
}

func positionKey(driverID int64) string {
	return driverPositionPrefix + strconv.FormatInt(driverID, 10)
}

func cellKey(cell string) string {
	return cellDriversPrefix + cell
}
