package models

// All lists every model, in dependency order, for AutoMigrate in dev and tests.
func All() []any {
	return []any{
		&Product{},
		&UserCartLine{},
		&Order{},
		&OrderItem{},
		&WishlistItem{},
	}
}
