package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the lifecycle state of a purchase.
type PurchaseStatus string

const (
	StatusPending   PurchaseStatus = "pending"
	StatusConfirmed PurchaseStatus = "confirmed"
	StatusCancelled PurchaseStatus = "cancelled"
)

// Purchase is one customer order of raffle numbers.
type Purchase struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customerName"`
	CustomerPhone string          `json:"customerPhone"`
	Numbers       []int           `json:"numbers"`
	Total         decimal.Decimal `json:"total"`
	Status        PurchaseStatus  `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// HasNumber reports whether n is one of the purchased numbers.
func (p *Purchase) HasNumber(n int) bool {
	for _, num := range p.Numbers {
		if num == n {
			return true
		}
	}
	return false
}

// DrawRecord is an entry of the append-only draw history.
type DrawRecord struct {
	Number  int       `json:"number"`
	DrawnAt time.Time `json:"drawnAt"`
}

// DrawResult is the outcome of a finished draw. Winner is nil when no
// confirmed purchase holds the number.
type DrawResult struct {
	Number  int       `json:"number"`
	DrawnAt time.Time `json:"drawnAt"`
	Winner  *Purchase `json:"winner,omitempty"`
}

// RaffleData is the persisted aggregate, written under the rifaData key.
type RaffleData struct {
	Purchases      []*Purchase     `json:"purchases"`
	SoldNumbers    []int           `json:"soldNumbers"`
	PendingNumbers []int           `json:"pendingNumbers"`
	TotalSold      int             `json:"totalSold"`
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	LastSaved      time.Time       `json:"lastSaved"`
}

// RaffleSnapshot is the public view of the ticket grid.
type RaffleSnapshot struct {
	TotalNumbers   int             `json:"totalNumbers"`
	SoldNumbers    []int           `json:"soldNumbers"`
	PendingNumbers []int           `json:"pendingNumbers"`
	Available      int             `json:"available"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Prize          decimal.Decimal `json:"prize"`
	LastSaved      time.Time       `json:"lastSaved"`
}

// RaffleStats are the admin dashboard totals.
type RaffleStats struct {
	TotalSold    int             `json:"totalSold"`
	TotalPending int             `json:"totalPending"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Available    int             `json:"available"`
	Purchases    int             `json:"purchases"`
}
