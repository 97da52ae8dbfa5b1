package features

import "PriceFeatures/internal/domain/models"

// Targets labels each row with the price horizon rows later. These read the
// future by construction and must never be fed back as features.
func Targets(points []models.PricePoint, horizon int) []models.Target {
	out := make([]models.Target, len(points))
	for i, pt := range points {
		out[i].Timestamp = pt.Timestamp
		j := i + horizon
		if horizon <= 0 || j >= len(points) {
			continue
		}
		future := points[j].Price
		change := future - pt.Price
		up := future > pt.Price
		out[i].FuturePrice = &future
		out[i].Change = &change
		out[i].TrendUp = &up
	}
	return out
}
