package schema

// SOFYFromEOFY returns the first day of the financial year ending on eofy.
func SOFYFromEOFY(eofy Date) Date {
	return eofy.WithYear(eofy.Year - 1).AddDays(1)
}

// EOFYFor returns the end of the financial year containing date, where eofy is
// any end-of-financial-year date (only its month and day are significant).
func EOFYFor(date, eofy Date) Date {
	candidate := eofy.WithYear(date.Year)
	if candidate.Before(date) {
		candidate = eofy.WithYear(date.Year + 1)
	}
	return candidate
}

// LastEOFY returns the end of the financial year preceding the one containing date.
func LastEOFY(date, eofy Date) Date {
	current := EOFYFor(date, eofy)
	return eofy.WithYear(current.Year - 1)
}
