package geoindex

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	redisclient "github.com/goride/dispatch/pkg/redis"
)

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *mockRedis) GetString(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockRedis) Delete(ctx context.Context, keys ...string) error {
	callArgs := make([]interface{}, 0, len(keys)+1)
	callArgs = append(callArgs, ctx)
	for _, k := range keys {
		callArgs = append(callArgs, k)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}

func (m *mockRedis) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockRedis) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockRedis) GeoAdd(ctx context.Context, key string, longitude, latitude float64, member string) error {
	args := m.Called(ctx, key, longitude, latitude, member)
	return args.Error(0)
}

func (m *mockRedis) GeoRadius(ctx context.Context, key string, longitude, latitude, radiusKm float64, count int) ([]redisclient.GeoMember, error) {
	args := m.Called(ctx, key, longitude, latitude, radiusKm, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]redisclient.GeoMember), args.Error(1)
}

func (m *mockRedis) GeoRemove(ctx context.Context, key string, member string) error {
	args := m.Called(ctx, key, member)
	return args.Error(0)
}

func (m *mockRedis) GeoMembers(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRedis) SetAdd(ctx context.Context, key string, members ...string) error {
	callArgs := append([]interface{}{ctx, key}, stringsToAny(members)...)
	args := m.Called(callArgs...)
	return args.Error(0)
}

func (m *mockRedis) SetRemove(ctx context.Context, key string, members ...string) error {
	callArgs := append([]interface{}{ctx, key}, stringsToAny(members)...)
	args := m.Called(callArgs...)
	return args.Error(0)
}

func (m *mockRedis) SetMembers(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	args := m.Called(ctx, key, expiration)
	return args.Error(0)
}

func stringsToAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func freshPosition(driverID int64, lat, lon float64, at time.Time) string {
	data, _ := json.Marshal(Position{
		DriverID:  driverID,
		Lat:       lat,
		Lon:       lon,
		H3Cell:    MatchingCell(lat, lon),
		UpdatedAt: at,
	})
	return string(data)
}

func TestUpsertWritesPositionAndGeoEntry(t *testing.T) {
	r := new(mockRedis)
	now := time.Now()

	cell := MatchingCell(12.9716, 77.5946)

	r.On("SetWithExpiration", mock.Anything, "driver:pos:7", mock.Anything, 5*time.Minute).Return(nil)
	r.On("GeoAdd", mock.Anything, "drivers:geo:index", 77.5946, 12.9716, "7").Return(nil)
	r.On("GetString", mock.Anything, "driver:h3cell:7").Return("", goredis.Nil)
	r.On("SetWithExpiration", mock.Anything, "driver:h3cell:7", mock.Anything, 5*time.Minute).Return(nil)
	r.On("SetAdd", mock.Anything, "h3:drivers:"+cell, "7").Return(nil)
	r.On("Expire", mock.Anything, "h3:drivers:"+cell, 5*time.Minute).Return(nil)

	idx := New(r, 5*time.Minute)
	err := idx.Upsert(context.Background(), 7, 12.9716, 77.5946, now)

	assert.NoError(t, err)
	r.AssertCalled(t, "GeoAdd", mock.Anything, "drivers:geo:index", 77.5946, 12.9716, "7")
	r.AssertCalled(t, "SetAdd", mock.Anything, "h3:drivers:"+cell, "7")
}

func TestUpsertMovesDriverBetweenCells(t *testing.T) {
	r := new(mockRedis)
	now := time.Now()

	newCell := MatchingCell(12.9716, 77.5946)

	r.On("SetWithExpiration", mock.Anything, "driver:pos:7", mock.Anything, 5*time.Minute).Return(nil)
	r.On("GeoAdd", mock.Anything, "drivers:geo:index", 77.5946, 12.9716, "7").Return(nil)
	r.On("GetString", mock.Anything, "driver:h3cell:7").Return("oldcell", nil)
	r.On("SetRemove", mock.Anything, "h3:drivers:oldcell", "7").Return(nil)
	r.On("SetWithExpiration", mock.Anything, "driver:h3cell:7", mock.Anything, 5*time.Minute).Return(nil)
	r.On("SetAdd", mock.Anything, "h3:drivers:"+newCell, "7").Return(nil)
	r.On("Expire", mock.Anything, "h3:drivers:"+newCell, 5*time.Minute).Return(nil)

	idx := New(r, 5*time.Minute)
	err := idx.Upsert(context.Background(), 7, 12.9716, 77.5946, now)

	assert.NoError(t, err)
	r.AssertCalled(t, "SetRemove", mock.Anything, "h3:drivers:oldcell", "7")
}

func TestGetReturnsFreshPosition(t *testing.T) {
	r := new(mockRedis)
	now := time.Now()

	r.On("GetString", mock.Anything, "driver:pos:7").
		Return(freshPosition(7, 12.9716, 77.5946, now.Add(-time.Minute)), nil)

	idx := New(r, 5*time.Minute)
	pos, err := idx.Get(context.Background(), 7, now)

	assert.NoError(t, err)
	assert.NotNil(t, pos)
	assert.Equal(t, int64(7), pos.DriverID)
	assert.InDelta(t, 12.9716, pos.Lat, 1e-9)
}

func TestGetEvictsStalePosition(t *testing.T) {
	r := new(mockRedis)
	now := time.Now()

	r.On("GetString", mock.Anything, "driver:pos:7").
		Return(freshPosition(7, 12.9716, 77.5946, now.Add(-10*time.Minute)), nil)
	r.On("Delete", mock.Anything, "driver:pos:7").Return(nil)
	r.On("GeoRemove", mock.Anything, "drivers:geo:index", "7").Return(nil)
	r.On("GetString", mock.Anything, "driver:h3cell:7").Return("", goredis.Nil)
	r.On("Delete", mock.Anything, "driver:h3cell:7").Return(nil)

	idx := New(r, 5*time.Minute)
	pos, err := idx.Get(context.Background(), 7, now)

	assert.NoError(t, err)
	assert.Nil(t, pos)
	r.AssertCalled(t, "GeoRemove", mock.Anything, "drivers:geo:index", "7")
}

func TestGetMissingPositionPurgesSecondaryIndex(t *testing.T) {
	r := new(mockRedis)

	r.On("GetString", mock.Anything, "driver:pos:7").Return("", goredis.Nil)
	r.On("GeoRemove", mock.Anything, "drivers:geo:index", "7").Return(nil)
	r.On("GetString", mock.Anything, "driver:h3cell:7").Return("", goredis.Nil)
	r.On("Delete", mock.Anything, "driver:h3cell:7").Return(nil)

	idx := New(r, 5*time.Minute)
	pos, err := idx.Get(context.Background(), 7, time.Now())

	assert.NoError(t, err)
	assert.Nil(t, pos)
}

func TestRadiusSignalsDegradedWhenBothPathsFail(t *testing.T) {
	r := new(mockRedis)

	r.On("GeoRadius", mock.Anything, "drivers:geo:index", 77.5946, 12.9716, 5.0, 50).
		Return(nil, errors.New("connection refused"))
	r.On("SetMembers", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	idx := New(r, 5*time.Minute)
	_, err := idx.Radius(context.Background(), Location{Lat: 12.9716, Lon: 77.5946}, 5.0, 50)

	assert.ErrorIs(t, err, ErrDegraded)
}

func TestRadiusFallsBackToCellIndex(t *testing.T) {
	r := new(mockRedis)

	cell := MatchingCell(12.9716, 77.5946)

	r.On("GeoRadius", mock.Anything, "drivers:geo:index", 77.5946, 12.9716, 5.0, 50).
		Return(nil, errors.New("connection refused"))
	r.On("SetMembers", mock.Anything, "h3:drivers:"+cell).Return([]string{"9", "7"}, nil)
	r.On("SetMembers", mock.Anything, mock.Anything).Return([]string{}, nil)

	idx := New(r, 5*time.Minute)
	candidates, err := idx.Radius(context.Background(), Location{Lat: 12.9716, Lon: 77.5946}, 5.0, 50)

	assert.NoError(t, err)
	assert.Equal(t, []Candidate{{DriverID: 7}, {DriverID: 9}}, candidates)
}

func TestRadiusParsesCandidates(t *testing.T) {
	r := new(mockRedis)

	r.On("GeoRadius", mock.Anything, "drivers:geo:index", 77.5946, 12.9716, 5.0, 50).
		Return([]redisclient.GeoMember{
			{Member: "7", DistKm: 0.42},
			{Member: "not-a-driver", DistKm: 0.9},
			{Member: "9", DistKm: 1.8},
		}, nil)

	idx := New(r, 5*time.Minute)
	candidates, err := idx.Radius(context.Background(), Location{Lat: 12.9716, Lon: 77.5946}, 5.0, 50)

	assert.NoError(t, err)
	assert.Equal(t, []Candidate{
		{DriverID: 7, ApproxDistKm: 0.42},
		{DriverID: 9, ApproxDistKm: 1.8},
	}, candidates)
}

func TestSweepPurgesExpiredEntries(t *testing.T) {
	r := new(mockRedis)
	now := time.Now()

	r.On("GeoMembers", mock.Anything, "drivers:geo:index").Return([]string{"7", "9"}, nil)

	// Driver 7 is fresh; driver 9's authoritative key has expired.
	r.On("GetString", mock.Anything, "driver:pos:7").
		Return(freshPosition(7, 12.9716, 77.5946, now.Add(-time.Minute)), nil)
	r.On("GetString", mock.Anything, "driver:pos:9").Return("", goredis.Nil)
	r.On("GeoRemove", mock.Anything, "drivers:geo:index", "9").Return(nil)
	r.On("GetString", mock.Anything, "driver:h3cell:9").Return("", goredis.Nil)
	r.On("Delete", mock.Anything, "driver:h3cell:9").Return(nil)

	idx := New(r, 5*time.Minute)
	removed, err := idx.Sweep(context.Background(), now)

	assert.NoError(t, err)
	assert.Equal(t, 1, removed)
	r.AssertNotCalled(t, "GeoRemove", mock.Anything, "drivers:geo:index", "7")
}
