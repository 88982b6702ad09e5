// Package geo implements geohash encoding/decoding and a spatial index for
// proximity queries on driver positions.
//
// Go Learning Note (What is a Geohash):
// A geohash encodes a latitude/longitude pair into a short string. Nearby
// locations usually share a common prefix, so "which drivers are in this
// area" becomes a handful of map lookups by cell instead of a distance
// computation against every driver.
//
// Precision determines the cell size:
//
//	1 → ~5000 km    4 → ~39 km     7 → ~153 m    10 → ~1.2 m
//	2 → ~1250 km    5 → ~5 km      8 → ~19 m     11 → ~15 cm
//	3 → ~156 km     6 → ~1.2 km    9 → ~2.4 m    12 → ~1.9 cm
package geo

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"booking/pkg/utils"
)

const (
	base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

	DefaultPrecision = 6
	MaxPrecision     = 12

	kmPerDegreeLat = utils.EarthRadiusKm * math.Pi / 180
)

// ErrInvalidGeohash is returned by Bounds for characters outside base32.
var ErrInvalidGeohash = errors.New("invalid geohash")

// Direction names one of the four edge-adjacent cells.
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

// Box is the bounding box of a geohash cell, in degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b Box) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

func (b Box) Height() float64 { return b.MaxLat - b.MinLat }
func (b Box) Width() float64  { return b.MaxLon - b.MinLon }

func clampPrecision(precision int) int {
	if precision <= 0 {
		return DefaultPrecision
	}
	if precision > MaxPrecision {
		return MaxPrecision
	}
	return precision
}

// Encode converts latitude and longitude to a geohash of the given precision.
//
// The longitude and latitude ranges are bisected alternately, longitude
// first; each step emits one bit (1 for the upper half) and every five bits
// become one base32 character.
//
// Go Learning Note (strings.Builder):
// strings.Builder is the idiomatic way to build strings incrementally. It
// grows one internal buffer instead of allocating a new string on every
// concatenation (Go strings are immutable).
func Encode(lat, lon float64, precision int) string {
	precision = clampPrecision(precision)

	lat = math.Max(-90, math.Min(90, lat))
	lon = normalizeLon(lon)

	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}

	var hash strings.Builder
	hash.Grow(precision)
	evenBit := true
	bits, ch := 0, 0
	for hash.Len() < precision {
		ch <<= 1
		if evenBit {
			if bisect(&lonRange, lon) {
				ch |= 1
			}
		} else {
			if bisect(&latRange, lat) {
				ch |= 1
			}
		}
		evenBit = !evenBit
		if bits++; bits == 5 {
			hash.WriteByte(base32[ch])
			bits, ch = 0, 0
		}
	}
	return hash.String()
}

// bisect narrows r to the half containing v and reports whether it was the
// upper half.
func bisect(r *[2]float64, v float64) bool {
	mid := (r[0] + r[1]) / 2
	if v >= mid {
		r[0] = mid
		return true
	}
	r[1] = mid
	return false
}

// Bounds replays the subdivision encoded in hash.
func Bounds(hash string) (Box, error) {
	box := Box{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	evenBit := true
	for i := 0; i < len(hash); i++ {
		cd := strings.IndexByte(base32, lower(hash[i]))
		if cd < 0 {
			return Box{}, errors.Wrapf(ErrInvalidGeohash, "%q at %d", hash, i)
		}
		for shift := 4; shift >= 0; shift-- {
			upper := (cd>>shift)&1 == 1
			if evenBit {
				mid := (box.MinLon + box.MaxLon) / 2
				if upper {
					box.MinLon = mid
				} else {
					box.MaxLon = mid
				}
			} else {
				mid := (box.MinLat + box.MaxLat) / 2
				if upper {
					box.MinLat = mid
				} else {
					box.MaxLat = mid
				}
			}
			evenBit = !evenBit
		}
	}
	return box, nil
}

// Decode returns the center of the cell. Invalid input decodes to (0, 0).
//
// Go Learning Note (Named Return Values):
// The signature `(lat, lon float64)` documents which float64 is which, which
// matters when two results share a type.
func Decode(hash string) (lat, lon float64) {
	box, err := Bounds(hash)
	if err != nil {
		return 0, 0
	}
	return box.Center()
}

// Neighbor returns the adjacent cell of the same precision. Longitude wraps
// at the antimeridian; there is no cell beyond a pole, so the hash itself is
// returned there.
func Neighbor(hash string, dir Direction) string {
	dLat, dLon := dir.steps()
	return offset(hash, dLat, dLon)
}

func (d Direction) steps() (dLat, dLon int) {
	switch d {
	case North:
		return 1, 0
	case South:
		return -1, 0
	case East:
		return 0, 1
	case West:
		return 0, -1
	}
	return 0, 0
}

// offset moves dLat cells north and dLon cells east from hash.
func offset(hash string, dLat, dLon int) string {
	box, err := Bounds(hash)
	if err != nil || len(hash) == 0 {
		return hash
	}
	lat, lon := box.Center()
	lat += float64(dLat) * box.Height()
	if lat > 90 || lat < -90 {
		return hash
	}
	lon = normalizeLon(lon + float64(dLon)*box.Width())
	return Encode(lat, lon, len(hash))
}

// AllNeighbors returns the 3x3 block around hash, center first, without
// duplicates (near the poles several directions collapse onto one cell).
func AllNeighbors(hash string) []string {
	out := make([]string, 0, 9)
	seen := make(map[string]struct{}, 9)
	for _, d := range [][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}} {
		n := offset(hash, d[0], d[1])
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// maxCoverCells bounds Cover; beyond it a full scan is cheaper.
const maxCoverCells = 1024

// Cover returns the cells of the given precision that together contain every
// point within radiusKm of (lat, lon). It reports false when that would take
// more than maxCoverCells cells or the circle reaches a pole; callers then
// scan everything instead.
func Cover(lat, lon, radiusKm float64, precision int) ([]string, bool) {
	center := Encode(lat, lon, precision)
	box, _ := Bounds(center)

	dLat := radiusKm / kmPerDegreeLat
	if lat+dLat >= 90 || lat-dLat <= -90 {
		return nil, false
	}
	// the widest longitude span of the circle is at its pole-ward edge
	edgeLat := math.Abs(lat) + dLat
	dLon := radiusKm / (kmPerDegreeLat * math.Cos(edgeLat*math.Pi/180))

	ny := int(math.Ceil(dLat / box.Height()))
	nx := int(math.Ceil(dLon / box.Width()))
	if (2*nx+1)*(2*ny+1) > maxCoverCells || dLon >= 180 {
		return nil, false
	}

	cells := make([]string, 0, (2*nx+1)*(2*ny+1))
	seen := make(map[string]struct{}, cap(cells))
	for i := -ny; i <= ny; i++ {
		for j := -nx; j <= nx; j++ {
			c := offset(center, i, j)
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			cells = append(cells, c)
		}
	}
	return cells, true
}

func normalizeLon(lon float64) float64 {
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
