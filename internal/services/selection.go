package services

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Selection is the set of numbers a buyer has picked on the grid.
type Selection struct {
	totalNumbers int
	unitPrice    decimal.Decimal
	taken        map[int]bool
	selected     []int
}

// NewSelection starts an empty selection; taken holds the sold and pending
// numbers, which cannot be selected.
func NewSelection(totalNumbers int, unitPrice decimal.Decimal, taken []int) *Selection {
	s := &Selection{
		totalNumbers: totalNumbers,
		unitPrice:    unitPrice,
		taken:        make(map[int]bool, len(taken)),
	}
	for _, n := range taken {
		s.taken[n] = true
	}
	return s
}

// Toggle adds n when unselected and removes it when selected. Taken and
// out-of-range numbers are ignored. It reports whether the selection changed.
func (s *Selection) Toggle(n int) bool {
	if n < 1 || n > s.totalNumbers || s.taken[n] {
		return false
	}
	for i, num := range s.selected {
		if num == n {
			s.selected = append(s.selected[:i], s.selected[i+1:]...)
			return true
		}
	}
	s.selected = append(s.selected, n)
	return true
}

func (s *Selection) IsSelected(n int) bool {
	for _, num := range s.selected {
		if num == n {
			return true
		}
	}
	return false
}

func (s *Selection) IsTaken(n int) bool {
	return s.taken[n]
}

// Numbers returns the selected numbers in the order they were picked.
func (s *Selection) Numbers() []int {
	return append([]int{}, s.selected...)
}

func (s *Selection) Count() int {
	return len(s.selected)
}

// Total is count x unit price.
func (s *Selection) Total() decimal.Decimal {
	return s.unitPrice.Mul(decimal.NewFromInt(int64(len(s.selected))))
}

// PaymentQuery encodes the selection for the payment page.
func (s *Selection) PaymentQuery() string {
	v := url.Values{}
	v.Set("numeros", JoinNumbers(s.selected))
	v.Set("total", s.Total().StringFixed(2))
	return v.Encode()
}

// JoinNumbers renders numbers comma-separated.
func JoinNumbers(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// SplitNumbers parses a comma-separated list, skipping invalid entries.
func SplitNumbers(s string) []int {
	var nums []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}
