package models

import "strings"

// Dimension is the attribute cost records are grouped by
type Dimension string

const (
	DimensionRegion       Dimension = "REGION"
	DimensionInstanceType Dimension = "INSTANCE_TYPE"
	DimensionTeam         Dimension = "TEAM"
	DimensionProject      Dimension = "PROJECT"
	DimensionResearcher   Dimension = "RESEARCHER"
	DimensionJobType      Dimension = "JOB_TYPE"
	DimensionUsageType    Dimension = "USAGE_TYPE"
	DimensionAZ           Dimension = "AZ"
)

// DefaultDimension is used when a caller asks for a dimension we don't know
const DefaultDimension = DimensionRegion

// AllDimensions lists every recognized grouping dimension
var AllDimensions = []Dimension{
	DimensionRegion,
	DimensionInstanceType,
	DimensionTeam,
	DimensionProject,
	DimensionResearcher,
	DimensionJobType,
	DimensionUsageType,
	DimensionAZ,
}

// ParseDimension maps a user-supplied name onto the closed set.
// Unknown names map to DefaultDimension and ok=false.
func ParseDimension(s string) (Dimension, bool) {
	candidate := Dimension(strings.ToUpper(strings.TrimSpace(s)))
	for _, d := range AllDimensions {
		if d == candidate {
			return d, true
		}
	}
	return DefaultDimension, false
}

// IsOrganizational reports whether the billing provider cannot group by d natively
func (d Dimension) IsOrganizational() bool {
	switch d {
	case DimensionTeam, DimensionProject, DimensionResearcher, DimensionJobType:
		return true
	}
	return false
}

func (d Dimension) String() string {
	return string(d)
}
