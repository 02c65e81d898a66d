package rating

// categoryFloors are the lowest ratings of categories 1 (strongest) to 7; anything below is category 8.
var categoryFloors = [...]int{1800, 1600, 1400, 1200, 1000, 800, 600}

// Categories is the number of category bands
const Categories = len(categoryFloors) + 1

// Category maps a rating to its band, 1 being the strongest and 8 the entry level
func Category(rating int) int {
	for i, floor := range categoryFloors {
		if rating >= floor {
			return i + 1
		}
	}
	return Categories
}
