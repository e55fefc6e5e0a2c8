package optionchain

import (
	"testing"

	"dhancore/internal/models"
)

func TestSynthesizeSide_InterpolatesMissingLeg(t *testing.T) {
	skel := &models.OptionChainSkeleton{
		Underlying: "NIFTY", Expiry: "26DEC", StrikeStep: 50,
		Strikes: map[float64]*models.StrikeData{
			24950: {Strike: 24950, CE: &models.OptionLeg{LTP: 100}},
			25000: {Strike: 25000, CE: &models.OptionLeg{LTP: 0}}, // missing
			25050: {Strike: 25050, CE: &models.OptionLeg{LTP: 200}},
		},
	}

	changed := synthesizeSide(skel, models.OptionTypeCall)
	if !changed {
		t.Fatal("expected synthesis to report a change")
	}
	leg := skel.Strikes[25000].CE
	if leg.LTP != 150 {
		t.Errorf("expected linear interpolation to 150, got %v", leg.LTP)
	}
	if !leg.Synthetic {
		t.Error("expected the synthesized leg to be marked Synthetic")
	}
}

func TestSynthesizeSide_ClampsAtEdges(t *testing.T) {
	skel := &models.OptionChainSkeleton{
		Underlying: "NIFTY", Expiry: "26DEC", StrikeStep: 50,
		Strikes: map[float64]*models.StrikeData{
			24950: {Strike: 24950, CE: &models.OptionLeg{LTP: 0}}, // missing, below all known
			25000: {Strike: 25000, CE: &models.OptionLeg{LTP: 100}},
			25050: {Strike: 25050, CE: &models.OptionLeg{LTP: 200}},
		},
	}

	synthesizeSide(skel, models.OptionTypeCall)
	if skel.Strikes[24950].CE.LTP != 100 {
		t.Errorf("expected edge clamp to nearest known value 100, got %v", skel.Strikes[24950].CE.LTP)
	}
}

func TestSynthesizeSide_NoOpWithFewerThanTwoKnownPoints(t *testing.T) {
	skel := &models.OptionChainSkeleton{
		Underlying: "NIFTY", Expiry: "26DEC", StrikeStep: 50,
		Strikes: map[float64]*models.StrikeData{
			25000: {Strike: 25000, CE: &models.OptionLeg{LTP: 100}},
			25050: {Strike: 25050, CE: &models.OptionLeg{LTP: 0}},
		},
	}

	changed := synthesizeSide(skel, models.OptionTypeCall)
	if changed {
		t.Error("expected no synthesis with only one known point")
	}
}
