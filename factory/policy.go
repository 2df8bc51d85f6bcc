/*
Package factory converts policy documents into earnings.Policy values.

PURPOSE:
  Commission percentages are fixed business policy, but operators and tests
  need to override them without code changes. The factory reads a JSON or
  YAML document, fills unspecified fields from earnings.DefaultPolicy() and
  validates the result.

DOCUMENT SCHEMA (YAML shown, JSON uses the same keys):
  platform:
    concierge_percentage: 20
    venue_percentage: 10
  non_prime:
    concierge_percentage: 80
    processing_fee_percentage: 7
    venue_percentage: -107
  referral:
    level_1_percentage: 10
    level_2_percentage: 5

  Percentages may be numbers or quoted decimal strings ("6.5").

USAGE:
  pf := factory.NewPolicyFactory()
  policy, err := pf.LoadFile("configs/policy.yaml")
  engine := earnings.NewEngine(policy)

SEE ALSO:
  - earnings/policy.go: Policy type and validation
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prima/earnings-engine/earnings"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// PolicyDocument is the serialized form of a policy. Nil fields keep the
// default value.
type PolicyDocument struct {
	Platform *PlatformJSON `json:"platform,omitempty" yaml:"platform,omitempty"`
	NonPrime *NonPrimeJSON `json:"non_prime,omitempty" yaml:"non_prime,omitempty"`
	Referral *ReferralJSON `json:"referral,omitempty" yaml:"referral,omitempty"`
}

type PlatformJSON struct {
	ConciergePercentage *decimal.Decimal `json:"concierge_percentage,omitempty" yaml:"concierge_percentage,omitempty"`
	VenuePercentage     *decimal.Decimal `json:"venue_percentage,omitempty" yaml:"venue_percentage,omitempty"`
}

type NonPrimeJSON struct {
	ConciergePercentage     *decimal.Decimal `json:"concierge_percentage,omitempty" yaml:"concierge_percentage,omitempty"`
	ProcessingFeePercentage *decimal.Decimal `json:"processing_fee_percentage,omitempty" yaml:"processing_fee_percentage,omitempty"`
	VenuePercentage         *decimal.Decimal `json:"venue_percentage,omitempty" yaml:"venue_percentage,omitempty"`
}

type ReferralJSON struct {
	Level1Percentage *decimal.Decimal `json:"level_1_percentage,omitempty" yaml:"level_1_percentage,omitempty"`
	Level2Percentage *decimal.Decimal `json:"level_2_percentage,omitempty" yaml:"level_2_percentage,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// PolicyFactory builds policies on top of a base policy.
type PolicyFactory struct {
	Base earnings.Policy
}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{Base: earnings.DefaultPolicy()}
}

// LoadFile reads a policy document; ".json" files are parsed as JSON,
// everything else as YAML.
func (f *PolicyFactory) LoadFile(path string) (earnings.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return earnings.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return f.ParseJSON(raw)
	}
	return f.ParseYAML(raw)
}

// Parse sniffs the format: documents starting with '{' are JSON.
func (f *PolicyFactory) Parse(raw []byte) (earnings.Policy, error) {
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return f.ParseJSON(raw)
	}
	return f.ParseYAML(raw)
}

func (f *PolicyFactory) ParseJSON(raw []byte) (earnings.Policy, error) {
	var doc PolicyDocument
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return earnings.Policy{}, fmt.Errorf("%w: parse json: %v", earnings.ErrInvalidPolicy, err)
	}
	return f.Build(doc)
}

func (f *PolicyFactory) ParseYAML(raw []byte) (earnings.Policy, error) {
	var doc PolicyDocument
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return earnings.Policy{}, fmt.Errorf("%w: parse yaml: %v", earnings.ErrInvalidPolicy, err)
	}
	return f.Build(doc)
}

// Build applies doc over the base policy and validates the result.
func (f *PolicyFactory) Build(doc PolicyDocument) (earnings.Policy, error) {
	p := f.Base
	if doc.Platform != nil {
		set(&p.PlatformPercentageConcierge, doc.Platform.ConciergePercentage)
		set(&p.PlatformPercentageVenue, doc.Platform.VenuePercentage)
	}
	if doc.NonPrime != nil {
		set(&p.NonPrimeConciergePercentage, doc.NonPrime.ConciergePercentage)
		set(&p.NonPrimeProcessingFeePercentage, doc.NonPrime.ProcessingFeePercentage)
		switch {
		case doc.NonPrime.VenuePercentage != nil && doc.NonPrime.ProcessingFeePercentage == nil:
			// The venue debit is 100% plus the processing fee.
			p.NonPrimeVenuePercentage = *doc.NonPrime.VenuePercentage
			p.NonPrimeProcessingFeePercentage = doc.NonPrime.VenuePercentage.Neg().Sub(decimal.NewFromInt(100))
		case doc.NonPrime.VenuePercentage != nil:
			p.NonPrimeVenuePercentage = *doc.NonPrime.VenuePercentage
		case doc.NonPrime.ProcessingFeePercentage != nil:
			// Keep the venue debit consistent with a changed surcharge.
			p.NonPrimeVenuePercentage = decimal.NewFromInt(-100).Sub(*doc.NonPrime.ProcessingFeePercentage)
		}
	}
	if doc.Referral != nil {
		set(&p.ReferralLevel1Percentage, doc.Referral.Level1Percentage)
		set(&p.ReferralLevel2Percentage, doc.Referral.Level2Percentage)
	}
	if err := p.Validate(); err != nil {
		return earnings.Policy{}, err
	}
	return p, nil
}

// ToDocument renders a policy with every field set.
func ToDocument(p earnings.Policy) PolicyDocument {
	return PolicyDocument{
		Platform: &PlatformJSON{
			ConciergePercentage: ptr(p.PlatformPercentageConcierge),
			VenuePercentage:     ptr(p.PlatformPercentageVenue),
		},
		NonPrime: &NonPrimeJSON{
			ConciergePercentage:     ptr(p.NonPrimeConciergePercentage),
			ProcessingFeePercentage: ptr(p.NonPrimeProcessingFeePercentage),
			VenuePercentage:         ptr(p.NonPrimeVenuePercentage),
		},
		Referral: &ReferralJSON{
			Level1Percentage: ptr(p.ReferralLevel1Percentage),
			Level2Percentage: ptr(p.ReferralLevel2Percentage),
		},
	}
}

func set(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
