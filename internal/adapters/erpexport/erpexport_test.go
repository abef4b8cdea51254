package erpexport

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nyxlight/ledger/internal/domain/ledger"
	"github.com/nyxlight/ledger/internal/domain/proposal"
)

func TestExport_RendersOneJSONLinePerBookingLine(t *testing.T) {
	e := New()

	proposals := []*proposal.BookingProposal{
		{
			ID: "prop-1", ClientID: "client-a", DocumentType: "ulazni_racun", ERPTarget: "CPP",
			Lines: []ledger.Line{
				{Konto: "7200", Side: ledger.Debit, Amount: decimal.NewFromInt(1000), Description: "usluga"},
				{Konto: "2200", Side: ledger.Credit, Amount: decimal.NewFromInt(1000), Description: "obveza", CounterpartyID: "12345678901"},
			},
		},
	}

	out, err := e.Export(proposals, "json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)

	var first exportRow
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "prop-1", first.ProposalID)
	require.Equal(t, "client-a", first.ClientID)
	require.Equal(t, "7200", first.Konto)
	require.Equal(t, "1000", first.Amount)
	require.Equal(t, "CPP", first.ERPTarget)

	var second exportRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "12345678901", second.Counterparty)
}

func TestExport_EmptySetProducesEmptyOutput(t *testing.T) {
	e := New()

	out, err := e.Export(nil, "json")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestExport_MultipleProposalsConcatenate(t *testing.T) {
	e := New()

	mk := func(id string) *proposal.BookingProposal {
		return &proposal.BookingProposal{
			ID: id, ClientID: "client-a",
			Lines: []ledger.Line{{Konto: "7200", Side: ledger.Debit, Amount: decimal.NewFromInt(100)}},
		}
	}

	out, err := e.Export([]*proposal.BookingProposal{mk("p1"), mk("p2")}, "json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
}
