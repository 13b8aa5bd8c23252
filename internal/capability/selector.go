package capability

import (
	"github.com/samber/lo"

	"github.com/mohaanymo/rainbow/internal/models"
)

// Select picks the representation an adaptive element should play: the
// highest-bandwidth one accepted by accept. Ties keep manifest order.
// It returns nil when nothing is acceptable.
func Select(reps []*models.Representation, accept func(models.Representation) bool) *models.Representation {
	candidates := lo.Filter(reps, func(r *models.Representation, _ int) bool {
		return r != nil && (accept == nil || accept(*r))
	})
	if len(candidates) == 0 {
		return nil
	}
	return lo.MaxBy(candidates, func(a, b *models.Representation) bool {
		return a.Bandwidth > b.Bandwidth
	})
}

// Rejected lists the representations tier filters out, for diagnostics.
func Rejected(reps []*models.Representation, tier Tier) []*models.Representation {
	return lo.Reject(reps, func(r *models.Representation, _ int) bool {
		return r == nil || Acceptable(*r, tier)
	})
}
