package distance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabdesk/internal/types"
)

func TestStraightLine_AppliesRoadBuffer(t *testing.T) {
	svc := NewService(nil, DefaultRoadBuffer, nil)
	dropoff := northOf(pickup, 5.0)

	e := svc.StraightLine(pickup, dropoff)
	assert.InDelta(t, 5.9, e.Miles, 1e-6)
	assert.Equal(t, SourceStraightLine, e.Source)
	assert.Equal(t, PhaseProvisional, e.Phase)
}

func TestStraightLine_SamePointIsZero(t *testing.T) {
	e := NewService(nil, DefaultRoadBuffer, nil).StraightLine(pickup, pickup)
	assert.Zero(t, e.Miles)
}

func TestNewService_ClampsBuffer(t *testing.T) {
	svc := NewService(nil, 0, nil)
	assert.Equal(t, DefaultRoadBuffer, svc.buffer)
}

func TestEstimate_DrivingAndFallback(t *testing.T) {
	dropoff := northOf(pickup, 5.0)

	ok := routerFuncOK(7.1)
	e, adv := NewService(ok, DefaultRoadBuffer, nil).Estimate(context.Background(), pickup, dropoff)
	require.Nil(t, adv)
	assert.Equal(t, SourceDriving, e.Source)
	assert.Equal(t, PhaseFinal, e.Phase)
	assert.Equal(t, 7.1, e.Miles)

	failing := routerFuncErr(errors.New("ZERO_RESULTS"))
	e, adv = NewService(failing, DefaultRoadBuffer, nil).Estimate(context.Background(), pickup, dropoff)
	require.NotNil(t, adv)
	assert.Equal(t, SourceStraightLine, e.Source)
	assert.Equal(t, PhaseFinal, e.Phase)
	assert.InDelta(t, 5.9, e.Miles, 1e-6)
}

func routerFuncOK(miles float64) Router {
	return routerFunc(func(context.Context, types.Point, types.Point) (float64, error) { return miles, nil })
}

func routerFuncErr(err error) Router {
	return routerFunc(func(context.Context, types.Point, types.Point) (float64, error) { return 0, err })
}
