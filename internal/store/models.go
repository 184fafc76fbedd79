package store

import "github.com/shopspring/decimal"

type Contact struct {
	ID          string
	Name        string
	Phone       string
	Type        string
	Status      string
	LastMessage string
}

type Stage struct {
	ID       string
	Name     string
	Position int
}

type Deal struct {
	ID          string
	ContactID   string
	ContactName string
	Title       string
	Value       decimal.Decimal
	StageID     string
	Description string
}

// DealQuery filters the SQL deal search.
type DealQuery struct {
	Text    string
	StageID string
	Limit   int
	Offset  int
}
