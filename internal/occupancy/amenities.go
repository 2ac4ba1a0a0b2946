package occupancy

// AmenityFlags are the boolean amenities read out of a property's free-form
// amenities document.
type AmenityFlags struct {
	Electricity     bool `json:"has_electricity"`
	Water           bool `json:"has_water"`
	Internet        bool `json:"has_internet"`
	Security        bool `json:"has_security"`
	Pool            bool `json:"has_pool"`
	Gym             bool `json:"has_gym"`
	Parking         bool `json:"has_parking"`
	Laundry         bool `json:"has_laundry"`
	StudyRoom       bool `json:"has_study_room"`
	AirConditioning bool `json:"has_air_conditioning"`
	Furnished       bool `json:"has_furnished"`
	PrivateBathroom bool `json:"has_private_bathroom"`
	Balcony         bool `json:"has_balcony"`
}

// ExtractAmenities reads utilities, facilities and room_features out of
// amenities. Any missing level or non-boolean leaf yields false.
func ExtractAmenities(amenities map[string]any) AmenityFlags {
	utilities := section(amenities, "utilities")
	facilities := section(amenities, "facilities")
	features := section(amenities, "room_features")

	return AmenityFlags{
		Electricity:     flag(utilities, "electricity"),
		Water:           flag(utilities, "water"),
		Internet:        flag(utilities, "internet"),
		Security:        flag(utilities, "security"),
		Pool:            flag(facilities, "pool"),
		Gym:             flag(facilities, "gym"),
		Parking:         flag(facilities, "parking"),
		Laundry:         flag(facilities, "laundry"),
		StudyRoom:       flag(facilities, "study_room"),
		AirConditioning: flag(features, "air_conditioning"),
		Furnished:       flag(features, "furnished"),
		PrivateBathroom: flag(features, "private_bathroom"),
		Balcony:         flag(features, "balcony"),
	}
}

func section(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	s, _ := m[key].(map[string]any)
	return s
}

func flag(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}
