package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prima/earnings-engine/earnings"
	"github.com/prima/earnings-engine/factory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPolicyFactory_EmptyDocumentIsDefault(t *testing.T) {
	p, err := factory.NewPolicyFactory().Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, earnings.DefaultPolicy(), p)
}

func TestPolicyFactory_ParseYAML_Overrides(t *testing.T) {
	// GIVEN: A YAML document changing the referral split and the surcharge
	doc := `
referral:
  level_1_percentage: 12.5
  level_2_percentage: "2.5"
non_prime:
  processing_fee_percentage: 9
`
	// WHEN: Parsing
	p, err := factory.NewPolicyFactory().Parse([]byte(doc))
	require.NoError(t, err)

	// THEN: Overrides apply, the venue debit follows the surcharge
	assert.True(t, p.ReferralLevel1Percentage.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, p.ReferralLevel2Percentage.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, p.NonPrimeProcessingFeePercentage.Equal(decimal.NewFromInt(9)))
	assert.True(t, p.NonPrimeVenuePercentage.Equal(decimal.NewFromInt(-109)))
	assert.True(t, p.NonPrimeConciergePercentage.Equal(decimal.NewFromInt(80)))
}

func TestPolicyFactory_ParseJSON(t *testing.T) {
	p, err := factory.NewPolicyFactory().Parse([]byte(`{"non_prime": {"concierge_percentage": "75", "venue_percentage": -110}}`))
	require.NoError(t, err)
	assert.True(t, p.NonPrimeConciergePercentage.Equal(decimal.NewFromInt(75)))
	assert.True(t, p.NonPrimeVenuePercentage.Equal(decimal.NewFromInt(-110)))
	assert.True(t, p.NonPrimeProcessingFeePercentage.Equal(decimal.NewFromInt(10)))
}

func TestPolicyFactory_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown json field":   `{"bonus": {"level_1_percentage": 1}}`,
		"unknown yaml field":   "referral:\n  level_3_percentage: 1\n",
		"referral over 100":    "referral:\n  level_1_percentage: 101\n",
		"positive venue debit": `{"non_prime": {"venue_percentage": 107}}`,
		"debit disagrees":      `{"non_prime": {"venue_percentage": -120, "processing_fee_percentage": 7}}`,
		"not a number":         "platform:\n  venue_percentage: ten\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := factory.NewPolicyFactory().Parse([]byte(raw))
			assert.ErrorIs(t, err, earnings.ErrInvalidPolicy)
		})
	}
}

func TestPolicyFactory_LoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "policy.yaml")
	jsonPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(yamlPath, []byte("referral:\n  level_2_percentage: 3\n"), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"referral": {"level_2_percentage": 4}}`), 0o644))

	pf := factory.NewPolicyFactory()
	p, err := pf.LoadFile(yamlPath)
	require.NoError(t, err)
	assert.True(t, p.ReferralLevel2Percentage.Equal(decimal.NewFromInt(3)))

	p, err = pf.LoadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, p.ReferralLevel2Percentage.Equal(decimal.NewFromInt(4)))

	_, err = pf.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestToDocument_RoundTripsThroughYAML(t *testing.T) {
	want := earnings.DefaultPolicy()
	want.ReferralLevel1Percentage = decimal.RequireFromString("11.5")

	raw, err := yaml.Marshal(factory.ToDocument(want))
	require.NoError(t, err)

	got, err := factory.NewPolicyFactory().ParseYAML(raw)
	require.NoError(t, err)
	assert.True(t, got.ReferralLevel1Percentage.Equal(want.ReferralLevel1Percentage))
	assert.True(t, got.NonPrimeVenuePercentage.Equal(want.NonPrimeVenuePercentage))
}
