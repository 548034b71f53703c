package enums

import (
	"fmt"
	"regexp"
	"strings"
)

// FulfillmentClass groups products and add-ons by how long they take to prepare.
type FulfillmentClass string

const (
	FulfillmentClassStandard           FulfillmentClass = "STANDARD"
	FulfillmentClassCustomPhoto        FulfillmentClass = "CUSTOM_PHOTO"
	FulfillmentClassComplexManufacture FulfillmentClass = "COMPLEX_MANUFACTURE"
)

var validFulfillmentClasses = []FulfillmentClass{
	FulfillmentClassStandard,
	FulfillmentClassCustomPhoto,
	FulfillmentClassComplexManufacture,
}

var leadHoursByClass = map[FulfillmentClass]int{
	FulfillmentClassStandard:           1,
	FulfillmentClassCustomPhoto:        4,
	FulfillmentClassComplexManufacture: 24,
}

// String implements fmt.Stringer.
func (f FulfillmentClass) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentClass.
func (f FulfillmentClass) IsValid() bool {
	for _, candidate := range validFulfillmentClasses {
		if candidate == f {
			return true
		}
	}
	return false
}

// LeadHours returns the minimum preparation time for the class. Unknown
// classes prepare like STANDARD.
func (f FulfillmentClass) LeadHours() int {
	if hours, ok := leadHoursByClass[f]; ok {
		return hours
	}
	return leadHoursByClass[FulfillmentClassStandard]
}

// ParseFulfillmentClass converts raw input into a FulfillmentClass.
func ParseFulfillmentClass(value string) (FulfillmentClass, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validFulfillmentClasses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment class %q", value)
}

var (
	customPhotoNamePattern = regexp.MustCompile(`(?i)(foto|photo|polaroid|retrato)`)
	complexNamePattern     = regexp.MustCompile(`(?i)(caneca|mug|quadro|bordad|gravad|engrav|almofada|personalizad)`)
)

// ClassifyByName derives a class from a display name for catalog entries that
// do not carry one yet. The slowest matching class wins.
//
// Deprecated: catalog entries should carry an explicit fulfillment class; this
// matcher only keeps older products bookable with the same lead time.
func ClassifyByName(name string) FulfillmentClass {
	switch {
	case complexNamePattern.MatchString(name):
		return FulfillmentClassComplexManufacture
	case customPhotoNamePattern.MatchString(name):
		return FulfillmentClassCustomPhoto
	default:
		return FulfillmentClassStandard
	}
}

// ResolveFulfillmentClass returns the explicit class when valid, otherwise the
// name-based fallback.
func ResolveFulfillmentClass(explicit string, name string) FulfillmentClass {
	if class, err := ParseFulfillmentClass(explicit); err == nil {
		return class
	}
	return ClassifyByName(name)
}
