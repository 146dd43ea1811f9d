// Package model defines the domain types shared across the BFF: wizard
// steps, proposal drafts, notifications, and navigation intents. All types
// are parsed and validated once at the ingress boundary so internal logic
// never handles untyped payloads.
package model

import (
	"fmt"
	"time"
)

// WizardStep identifies a step in the proposal-creation wizard. The ordinal
// value drives forward/back transitions: a step's data is only meaningful
// while the session is at or past that step.
type WizardStep int

const (
	StepListing WizardStep = iota
	StepSelectClient
	StepTaxConfig
	StepSelectServices
)

var stepNames = map[WizardStep]string{
	StepListing:        "LISTING",
	StepSelectClient:   "SELECT_CLIENT",
	StepTaxConfig:      "TAX_CONFIG",
	StepSelectServices: "SELECT_SERVICES",
}

// String returns the canonical step name.
func (s WizardStep) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// Valid reports whether s is a defined wizard step.
func (s WizardStep) Valid() bool {
	_, ok := stepNames[s]
	return ok
}

// ParseWizardStep converts a canonical step name back to a WizardStep.
func ParseWizardStep(name string) (WizardStep, error) {
	for step, n := range stepNames {
		if n == name {
			return step, nil
		}
	}
	return StepListing, fmt.Errorf("unknown wizard step %q", name)
}

// ClientSelection records the client chosen in the SELECT_CLIENT step.
type ClientSelection struct {
	ClientID int64 `json:"client_id"`
}

// TaxConfiguration is the tax setup captured in the TAX_CONFIG step.
// RevenueBracketID is nil when the chosen regime defines no revenue brackets.
type TaxConfiguration struct {
	ActivityTypeID   int64  `json:"activity_type_id"`
	TaxRegimeID      int64  `json:"tax_regime_id"`
	RevenueBracketID *int64 `json:"revenue_bracket_id"`
}

// ActivityType classifies a client's business activity. ApplicableToCompany
// decides whether the SELECT_SERVICES step is reachable.
type ActivityType struct {
	ID                     int64  `json:"id"`
	Code                   string `json:"code"`
	Name                   string `json:"name"`
	ApplicableToIndividual bool   `json:"applicable_to_individual"`
	ApplicableToCompany    bool   `json:"applicable_to_company"`
	Active                 bool   `json:"active"`
}

// Applicability is the tagged outcome of resolving an activity type for the
// service-selection branch decision. Unknown means the lookup failed or the
// type was not found; how Unknown is treated is an explicit policy decision
// at the call site, never an accidental default.
type Applicability int

const (
	ApplicabilityUnknown Applicability = iota
	Applicable
	NotApplicable
)

// String returns the applicability name for logs and tests.
func (a Applicability) String() string {
	switch a {
	case Applicable:
		return "applicable"
	case NotApplicable:
		return "not_applicable"
	default:
		return "unknown"
	}
}

// SelectedService is one proposal line item. Subtotal is an invariant
// derived from quantity and unit price; Normalize recomputes it.
type SelectedService struct {
	ServiceID int64   `json:"service_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// Normalize recomputes the subtotal from quantity and unit price.
func (s *SelectedService) Normalize() {
	s.Subtotal = float64(s.Quantity) * s.UnitPrice
}

// ProposalDraft is the in-progress state of one wizard session. A non-nil
// TaxConfig implies Client was set earlier; non-empty Services implies a
// non-nil TaxConfig (steps are strictly ordered).
type ProposalDraft struct {
	Step         WizardStep        `json:"step"`
	Client       *ClientSelection  `json:"client,omitempty"`
	TaxConfig    *TaxConfiguration `json:"tax_config,omitempty"`
	ActivityType *ActivityType     `json:"activity_type,omitempty"`
	Services     []SelectedService `json:"services"`
}

// HasData reports whether any draft field beyond the step marker is set.
func (d ProposalDraft) HasData() bool {
	return d.Client != nil || d.TaxConfig != nil || len(d.Services) > 0
}

// Client is the subset of the upstream client record the wizard needs.
type Client struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Proposal is a finalized commercial proposal as returned by the upstream
// accounting API.
type Proposal struct {
	ID               int64             `json:"id"`
	ClientID         int64             `json:"client_id"`
	ActivityTypeID   int64             `json:"activity_type_id"`
	TaxRegimeID      int64             `json:"tax_regime_id"`
	RevenueBracketID *int64            `json:"revenue_bracket_id"`
	Services         []SelectedService `json:"services"`
	Total            float64           `json:"total"`
	Status           string            `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ProposalCreate is the payload for finalizing a proposal from a draft.
type ProposalCreate struct {
	ClientID         int64             `json:"client_id"`
	ActivityTypeID   int64             `json:"activity_type_id"`
	TaxRegimeID      int64             `json:"tax_regime_id"`
	RevenueBracketID *int64            `json:"revenue_bracket_id"`
	Services         []SelectedService `json:"services"`
}

// DataSource tags where a payload came from, so demo fallback data can never
// be mistaken for live records.
type DataSource string

const (
	SourceLive     DataSource = "live"
	SourceFallback DataSource = "fallback"
)

// Notification is a workflow notification for an employee. The read flag and
// timestamp are mutated exactly once per read action; notifications are
// never deleted by this service.
type Notification struct {
	ID                  int64      `json:"id"`
	Kind                string     `json:"kind"`
	Title               string     `json:"title"`
	Message             string     `json:"message"`
	ProposalID          *int64     `json:"proposal_id"`
	RecipientEmployeeID int64      `json:"recipient_employee_id"`
	SenderEmployeeID    *int64     `json:"sender_employee_id"`
	IsRead              bool       `json:"is_read"`
	ReadAt              *time.Time `json:"read_at"`
	Active              bool       `json:"active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// PageProposals is the wizard's host page. Navigating to any other page
// orphans an in-progress draft.
const PageProposals = "propostas"

// NavigationOptions carries the optional deep-link payload of an intent.
type NavigationOptions struct {
	OpenModal  bool   `json:"open_modal,omitempty"`
	ProposalID *int64 `json:"proposal_id,omitempty"`
}

// NavigationIntent asks the page navigator to move the session to a target
// page, optionally opening a specific proposal. Intents are short-lived and
// cleared when consumed by the destination page.
type NavigationIntent struct {
	TargetPage string            `json:"target_page"`
	Options    NavigationOptions `json:"options"`
}
