// Package proj transforms geographic coordinates into projected raster
// coordinate systems. Coverage is deliberately narrow: EPSG:4326 plus the
// WGS84 UTM zones that Sentinel-2 scenes are delivered in.
package proj

import (
	"math"

	"github.com/rotisserie/eris"
)

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1.0 / 298.257223563
)

// UTM parameters.
const (
	utmScale        = 0.9996
	utmFalseEasting = 500000.0
	utmFalseNorthSH = 10000000.0
)

// Transformer converts lon/lat (EPSG:4326, degrees) into a target CRS.
type Transformer struct {
	epsg  int
	zone  int
	south bool
}

// NewTransformer builds a transformer for the given EPSG code. Supported
// codes: 4326 (identity), 32601-32660 (UTM north), 32701-32760 (UTM south).
func NewTransformer(epsg int) (*Transformer, error) {
	switch {
	case epsg == 4326:
		return &Transformer{epsg: epsg}, nil
	case epsg >= 32601 && epsg <= 32660:
		return &Transformer{epsg: epsg, zone: epsg - 32600}, nil
	case epsg >= 32701 && epsg <= 32760:
		return &Transformer{epsg: epsg, zone: epsg - 32700, south: true}, nil
	default:
		return nil, eris.Errorf("proj: unsupported EPSG code %d", epsg)
	}
}

// EPSG returns the target EPSG code.
func (t *Transformer) EPSG() int { return t.epsg }

// Forward converts a lon/lat pair in degrees to target CRS coordinates.
func (t *Transformer) Forward(lon, lat float64) (x, y float64) {
	if t.epsg == 4326 {
		return lon, lat
	}
	return utmForward(lon, lat, t.zone, t.south)
}

// utmForward is the WGS84 transverse Mercator series expansion.
func utmForward(lon, lat float64, zone int, south bool) (x, y float64) {
	phi := lat * math.Pi / 180
	lam := lon * math.Pi / 180
	lam0 := float64(zone*6-183) * math.Pi / 180

	e2 := wgs84F * (2 - wgs84F)
	ep2 := e2 / (1 - e2)

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := wgs84A / math.Sqrt(1-e2*sinPhi*sinPhi)
	tt := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := cosPhi * (lam - lam0)

	e4 := e2 * e2
	e6 := e4 * e2
	m := wgs84A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	x = utmScale*n*(a+(1-tt+c)*a3/6+(5-18*tt+tt*tt+72*c-58*ep2)*a5/120) + utmFalseEasting
	y = utmScale * (m + n*tanPhi*(a2/2+(5-tt+9*c+4*c*c)*a4/24+
		(61-58*tt+tt*tt+600*c-330*ep2)*a6/720))
	if south {
		y += utmFalseNorthSH
	}
	return x, y
}
