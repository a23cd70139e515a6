package model

import (
	"github.com/paulmach/orb"
)

// CityEntry is a search centre for one city.
type CityEntry struct {
	Name               string  `json:"name" yaml:"name"`
	Latitude           float64 `json:"lat" yaml:"lat"`
	Longitude          float64 `json:"lng" yaml:"lng"`
	SearchRadiusMeters int     `json:"radius" yaml:"radius"`
}

// Point returns the city centre as an orb point (lng, lat).
func (c CityEntry) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// StateEntry groups the cities searched for one state.
type StateEntry struct {
	Code   string      `json:"code" yaml:"code"`
	Name   string      `json:"name" yaml:"name"`
	Cities []CityEntry `json:"cities" yaml:"cities"`
}
