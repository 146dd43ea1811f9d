package upstream

import (
	"time"

	"github.com/fiscalis/proposta-bff/model"
)

// fallbackProposals returns the demo dataset served when the accounting API
// cannot be reached. The records use negative IDs so they can never collide
// with live data.
func fallbackProposals() []model.Proposal {
	base := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	bracket := int64(2)

	return []model.Proposal{
		{
			ID:             -1,
			ClientID:       -10,
			ActivityTypeID: 1,
			TaxRegimeID:    1,
			Services: []model.SelectedService{
				{ServiceID: 101, Quantity: 1, UnitPrice: 1200, Subtotal: 1200},
				{ServiceID: 102, Quantity: 12, UnitPrice: 350, Subtotal: 4200},
			},
			Total:     5400,
			Status:    "sent",
			CreatedAt: base,
		},
		{
			ID:               -2,
			ClientID:         -11,
			ActivityTypeID:   3,
			TaxRegimeID:      2,
			RevenueBracketID: &bracket,
			Services: []model.SelectedService{
				{ServiceID: 103, Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
			},
			Total:     2500,
			Status:    "accepted",
			CreatedAt: base.AddDate(0, 0, 7),
		},
		{
			ID:             -3,
			ClientID:       -12,
			ActivityTypeID: 2,
			TaxRegimeID:    1,
			Services:       []model.SelectedService{},
			Total:          0,
			Status:         "draft",
			CreatedAt:      base.AddDate(0, 1, 0),
		},
	}
}
