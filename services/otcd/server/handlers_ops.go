package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"otcpool/core/state"
	"otcpool/native/otc"
	"otcpool/services/otcd/api"
	"otcpool/services/otcd/recon"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	after, err := parseCursor(r.URL.Query().Get("after"))
	if err != nil {
		s.writeError(w, badRequest("invalid after cursor"))
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			s.writeError(w, badRequest("invalid limit"))
			return
		}
	}
	records, err := s.journal.Events(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	page := api.EventPage{Events: make([]api.Event, 0, len(records)), Next: after}
	for _, record := range records {
		evt, err := toAPIEvent(record)
		if err != nil {
			s.writeError(w, err)
			return
		}
		page.Events = append(page.Events, evt)
		page.Next = record.Sequence
	}
	writeJSON(w, http.StatusOK, page)
}

// handleCredit funds a ledger account. It is the operator's entry point for
// moving external deposits into the pool ledger.
func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, badRequest("read body"))
		return
	}
	var req api.CreditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, badRequest("invalid json"))
		return
	}
	owner, errO := api.ParseIdentity(req.Owner)
	mint, errM := api.ParseMint(req.Mint)
	if errO != nil || errM != nil || req.Amount == 0 {
		s.writeError(w, badRequest("owner, mint and a positive amount are required"))
		return
	}
	acct := otc.Account{Owner: owner, Mint: mint}
	var balance uint64
	err = s.execute(r.Context(), "ledger_credit", func(tx *state.Tx) error {
		if err := tx.Credit(acct, req.Amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.Balance(acct)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("otcd: ledger credited", "owner", req.Owner, "mint", req.Mint, "amount", req.Amount)
	writeJSON(w, http.StatusOK, api.Balance{Owner: req.Owner, Mint: req.Mint, Amount: balance})
}

func (s *Server) handleRecon(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		s.writeError(w, errReconDisabled)
		return
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	result, err := s.reconciler.Run(r.Context(), recon.RunOptions{DryRun: dryRun})
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary := api.ReconSummary{
		Offers:      len(result.Rows),
		Anomalies:   len(result.Anomalies),
		CSVPath:     result.CSVPath,
		ParquetPath: result.ParquetPath,
	}
	seen := map[string]bool{}
	for _, anomaly := range result.Anomalies {
		if !seen[anomaly.Type] {
			seen[anomaly.Type] = true
			summary.Types = append(summary.Types, anomaly.Type)
		}
	}
	writeJSON(w, http.StatusOK, summary)
}
