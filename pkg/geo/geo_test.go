package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineSamePoint(t *testing.T) {
	p := Point{Lat: 28.6139, Lng: 77.2090}
	assert.Equal(t, 0.0, Haversine(p, p))
}

func TestHaversineSymmetry(t *testing.T) {
	a := Point{Lat: 30.6586, Lng: 104.0647}
	b := Point{Lat: 39.9042, Lng: 116.4074}
	assert.InDelta(t, Haversine(a, b), Haversine(b, a), 1e-9)
}

func TestHaversineOneDegreeAlongEquator(t *testing.T) {
	// 赤道上相差 1 度约 111.19 公里
	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 1}
	d := Haversine(a, b)
	assert.InEpsilon(t, 111.19, d, 0.005)
}

func TestHaversineShortDistances(t *testing.T) {
	// 约 1.11 公里
	d := Haversine(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 0.01})
	assert.InDelta(t, 1.11, d, 0.01)

	// 约 0.22 公里
	d = Haversine(Point{Lat: 0, Lng: 0}, Point{Lat: 0, Lng: 0.002})
	assert.InDelta(t, 0.22, d, 0.01)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lat: 90, Lng: -180}.Valid())
	assert.True(t, Point{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Point{Lat: 90.0001, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: 180.0001}.Valid())
	assert.False(t, Point{Lat: math.NaN(), Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: math.Inf(1)}.Valid())
}
