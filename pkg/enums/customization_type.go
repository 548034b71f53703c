package enums

import "fmt"

// CustomizationType tags the kind of personalization attached to a cart line.
type CustomizationType string

const (
	CustomizationTypeText         CustomizationType = "text"
	CustomizationTypeOption       CustomizationType = "option"
	CustomizationTypeItemSwap     CustomizationType = "item_swap"
	CustomizationTypePhotoUpload  CustomizationType = "photo_upload"
	CustomizationTypeMultiplePick CustomizationType = "multiple_choice"
)

var validCustomizationTypes = []CustomizationType{
	CustomizationTypeText,
	CustomizationTypeOption,
	CustomizationTypeItemSwap,
	CustomizationTypePhotoUpload,
	CustomizationTypeMultiplePick,
}

// String implements fmt.Stringer.
func (c CustomizationType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CustomizationType.
func (c CustomizationType) IsValid() bool {
	for _, candidate := range validCustomizationTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCustomizationType converts raw input into a CustomizationType.
func ParseCustomizationType(value string) (CustomizationType, error) {
	for _, candidate := range validCustomizationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid customization type %q", value)
}
