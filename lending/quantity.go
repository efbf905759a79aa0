package lending

import "strings"

const (
	StatusAvailable   = "available"
	StatusBorrowed    = "borrowed"
	StatusMaintenance = "maintenance"
)

func ValidGameStatus(s string) bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusMaintenance:
		return true
	}
	return false
}

type PlatformQuantity struct {
	Platform string `json:"platform"`
	Quantity int    `json:"quantity"`
}

// AggregatePlatforms drops blank platforms and non-positive quantities and sums
// duplicates. The result keeps first-seen order.
func AggregatePlatforms(in []PlatformQuantity) []PlatformQuantity {
	idx := map[string]int{}
	var out []PlatformQuantity
	for _, pq := range in {
		p := strings.TrimSpace(pq.Platform)
		if p == "" || pq.Quantity <= 0 {
			continue
		}
		if i, ok := idx[p]; ok {
			out[i].Quantity += pq.Quantity
			continue
		}
		idx[p] = len(out)
		out = append(out, PlatformQuantity{Platform: p, Quantity: pq.Quantity})
	}
	return out
}

// ClampQuantities enforces 0 <= available <= total.
func ClampQuantities(total, available int) (int, int) {
	if total < 0 {
		total = 0
	}
	if available < 0 {
		available = 0
	}
	if available > total {
		available = total
	}
	return total, available
}

// DeriveStatus keeps an explicit maintenance flag; otherwise the status follows
// the free copies.
func DeriveStatus(requested string, available int) string {
	if requested == StatusMaintenance {
		return StatusMaintenance
	}
	if available > 0 {
		return StatusAvailable
	}
	return StatusBorrowed
}

// InitialAvailable is the free count of a freshly added platform row.
func InitialAvailable(status string, quantity int) int {
	if status == "" || status == StatusAvailable {
		return quantity
	}
	return 0
}
