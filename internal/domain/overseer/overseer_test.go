package overseer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_ApprovesOrdinaryAccountingQuery(t *testing.T) {
	o := New()

	v := o.Evaluate("kako knjižim ulazni račun za uslugu?", "chat")
	require.True(t, v.Approved)
	require.False(t, v.HardBoundary)
}

func TestEvaluate_BlocksLegalDomainRequest(t *testing.T) {
	o := New()

	v := o.Evaluate("molim te sastavi mi ugovor o najmu poslovnog prostora", "chat")
	require.False(t, v.Approved)
	require.True(t, v.HardBoundary)
	require.Equal(t, BoundaryLegalDomain, v.BoundaryType)
}

func TestEvaluate_PayrollCarveOutAllowsLaborLawTerms(t *testing.T) {
	o := New()

	v := o.Evaluate("molim obračun otpremnine za bruto plaću djelatnika", "chat")
	require.True(t, v.Approved)
}

func TestEvaluate_LaborLawAlwaysForbiddenOverridesCarveOut(t *testing.T) {
	o := New()

	v := o.Evaluate("imamo radni spor oko obračuna otpremnine", "chat")
	require.False(t, v.Approved)
	require.Equal(t, BoundaryLaborLaw, v.BoundaryType)
}

func TestEvaluate_LawsuitRequestReportsLegalDomainNotLaborLaw(t *testing.T) {
	o := New()

	v := o.Evaluate("sastavi mi tužbu protiv dobavljača", "chat")
	require.False(t, v.Approved)
	require.True(t, v.HardBoundary)
	require.Equal(t, BoundaryLegalDomain, v.BoundaryType)
}

func TestEvaluate_BlocksAutonomousBookingRequest(t *testing.T) {
	o := New()

	v := o.Evaluate("molim te automatski proknjiži sve ulazne račune bez provjere", "chat")
	require.False(t, v.Approved)
	require.Equal(t, BoundaryAutonomous, v.BoundaryType)
}

func TestEvaluate_BlocksCloudAPIRequest(t *testing.T) {
	o := New()

	v := o.Evaluate("pošalji ove podatke na openai da ih obradi", "chat")
	require.False(t, v.Approved)
	require.Equal(t, BoundaryPrivacy, v.BoundaryType)
}

func TestStats_TracksEvaluationsAndBlocks(t *testing.T) {
	o := New()

	o.Evaluate("normalan upit o pdv-u", "chat")
	o.Evaluate("sastavi ugovor o radu", "chat")

	stats := o.Stats()
	require.Equal(t, 2, stats.Evaluations)
	require.Equal(t, 1, stats.Blocks)
	require.InDelta(t, 0.5, stats.BlockRate, 0.001)
}

func TestValidateBooking_WarnsOverCashLimitButNeverBlocks(t *testing.T) {
	o := New()

	v := o.ValidateBooking(BookingCheck{
		DocumentType: "blagajna",
		Amount:       decimal.NewFromInt(15000),
	})

	require.False(t, v.Valid)
	require.True(t, v.RequiresApproval)
	require.Len(t, v.Warnings, 1)
}

func TestValidateBooking_WarnsOverKmRateLimit(t *testing.T) {
	o := New()

	v := o.ValidateBooking(BookingCheck{
		DocumentType: "putni_nalog",
		KmRate:       decimal.NewFromFloat(0.45),
	})

	require.False(t, v.Valid)
	require.Len(t, v.Warnings, 1)
}

func TestValidateBooking_CleanBookingHasNoWarnings(t *testing.T) {
	o := New()

	v := o.ValidateBooking(BookingCheck{
		DocumentType: "ulazni_racun",
		Amount:       decimal.NewFromInt(500),
	})

	require.True(t, v.Valid)
	require.Empty(t, v.Warnings)
	require.True(t, v.RequiresApproval)
}
