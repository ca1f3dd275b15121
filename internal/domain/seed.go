package domain

// DefaultVenues is the catalogue seeded into an empty store.
func DefaultVenues() []Venue {
	return []Venue{
		{
			ID:           "turf_001",
			Name:         "Green Valley Sports Arena",
			Location:     "Downtown, Sector 21, Main Street",
			Description:  "Premium artificial turf with floodlights, perfect for football, cricket, and other sports",
			Amenities:    []string{"Floodlights", "Changing Rooms", "Parking", "Water Facility", "First Aid"},
			Size:         "100x60 feet",
			SurfaceType:  "Artificial Grass",
			PricePerHour: 1500,
			AvailableHours: []string{
				"06:00", "07:00", "08:00", "09:00", "10:00", "11:00",
				"12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
				"18:00", "19:00", "20:00", "21:00", "22:00",
			},
			Images:       []string{"turf1.jpg", "turf2.jpg"},
			Rating:       4.5,
			TotalReviews: 128,
		},
	}
}
