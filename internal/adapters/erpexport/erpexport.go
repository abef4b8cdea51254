// Package erpexport is the default implementation of proposal.Exporter.
//
// spec.md §6 treats the ERP file-format emitter as an external module the
// core only calls through erp_emit(bookings, client, erp_name, format) and
// is "agnostic to file syntax; only status == 'exported' advances state".
// This package is the local stand-in for that module: it renders the
// approved set as JSON Lines, one line per booking line, which is a
// syntax every real ERP adapter can read and re-emit from without this
// package ever needing to know an ERP-specific wire format.
package erpexport

import (
	"bytes"
	"encoding/json"

	"github.com/nyxlight/ledger/internal/domain/proposal"
)

// JSONLExporter renders approved proposals as newline-delimited JSON.
type JSONLExporter struct{}

// New builds a JSONLExporter.
func New() *JSONLExporter {
	return &JSONLExporter{}
}

type exportRow struct {
	ProposalID   string `json:"proposal_id"`
	ClientID     string `json:"client_id"`
	DocumentType string `json:"document_type"`
	Konto        string `json:"konto"`
	Side         string `json:"side"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	Counterparty string `json:"counterparty_id,omitempty"`
	ERPTarget    string `json:"erp_target"`
	Format       string `json:"format"`
}

// Export implements proposal.Exporter.
func (e *JSONLExporter) Export(proposals []*proposal.BookingProposal, format string) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)

	for _, p := range proposals {
		for _, l := range p.Lines {
			row := exportRow{
				ProposalID:   p.ID,
				ClientID:     p.ClientID,
				DocumentType: p.DocumentType,
				Konto:        l.Konto,
				Side:         string(l.Side),
				Amount:       l.Amount.String(),
				Description:  l.Description,
				Counterparty: l.CounterpartyID,
				ERPTarget:    p.ERPTarget,
				Format:       format,
			}

			if err := enc.Encode(row); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}
