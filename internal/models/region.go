package models

import "strings"

// Region selects a calibrated country and sub-area, e.g. CH/BE.
type Region struct {
	Country string `json:"country" yaml:"country"`
	Area    string `json:"area" yaml:"area"`
}

// String returns "country-area".
func (r Region) String() string {
	return r.Country + "-" + r.Area
}

// Validate checks that both parts are set and contain no separators.
func (r Region) Validate() error {
	if r.Country == "" {
		return NewConfigurationError("country", "is required")
	}
	if r.Area == "" {
		return NewConfigurationError("area", "is required")
	}
	if strings.ContainsAny(r.Country+r.Area, "-|/ ") {
		return NewConfigurationError("region", "%q contains a separator character", r.Country+"/"+r.Area)
	}
	return nil
}
