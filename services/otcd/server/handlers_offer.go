package server

import (
	"net/http"
	"strconv"

	"otcpool/core/state"
	"otcpool/native/otc"
	"otcpool/services/otcd/api"
)

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	signed, _ := signedFromContext(r.Context())
	var req api.SwapRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	partyA, errA := api.ParseIdentity(req.PartyA)
	partyB, errB := api.ParseIdentity(req.PartyB)
	mintA, errMA := api.ParseMint(req.MintA)
	mintB, errMB := api.ParseMint(req.MintB)
	if errA != nil || errB != nil || errMA != nil || errMB != nil {
		s.writeError(w, badRequest("invalid swap parties or mints"))
		return
	}
	if signed.Caller != partyA {
		s.writeError(w, otc.ErrUnauthorized)
		return
	}
	// Party B co-signs the same envelope.
	counterparty, err := api.ParseIdentity(r.Header.Get(api.HeaderCounterpartyAddress))
	if err != nil || counterparty != partyB {
		s.writeError(w, errMissingSignature)
		return
	}
	if err := verifySigner(partyB, r.Header.Get(api.HeaderCounterpartySignature), r.Method, r.URL.Path, signed.Timestamp, signed.Nonce, signed.Body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.chargeQuota(partyA, req.AmountA); err != nil {
		s.writeError(w, err)
		return
	}
	params := otc.SwapParams{
		PartyA:       partyA,
		PartyB:       partyB,
		PartyASource: otc.Account{Owner: partyA, Mint: mintA},
		PartyBDest:   otc.Account{Owner: partyB, Mint: mintA},
		PartyBSource: otc.Account{Owner: partyB, Mint: mintB},
		PartyADest:   otc.Account{Owner: partyA, Mint: mintB},
		AmountA:      req.AmountA,
		AmountB:      req.AmountB,
	}
	var result *otc.SwapResult
	err = s.execute(r.Context(), "swap_direct", func(tx *state.Tx) error {
		var err error
		result, err = s.engine.SwapDirect(tx, params)
		return err
	})
	if err != nil {
		s.refundQuota(partyA, req.AmountA)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SwapResponse{
		MintA:   api.FormatMint(result.MintA),
		MintB:   api.FormatMint(result.MintB),
		AmountA: result.AmountA,
		AmountB: result.AmountB,
	})
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOfferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	mintA, errA := api.ParseMint(req.MintA)
	mintB, errB := api.ParseMint(req.MintB)
	if errA != nil || errB != nil {
		s.writeError(w, badRequest("invalid mints"))
		return
	}
	maker := callerFrom(r)
	if err := s.chargeQuota(maker, req.AmountA); err != nil {
		s.writeError(w, err)
		return
	}
	var offer *otc.Offer
	err := s.execute(r.Context(), "create_offer", func(tx *state.Tx) error {
		var err error
		offer, err = s.engine.CreateOffer(tx, otc.CreateOfferParams{
			Maker:        maker,
			MintA:        mintA,
			MintB:        mintB,
			AmountA:      req.AmountA,
			AmountB:      req.AmountB,
			ExpirationTs: req.ExpirationTs,
		})
		return err
	})
	if err != nil {
		s.refundQuota(maker, req.AmountA)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.NewOffer(offer))
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	maker, err := identityParam(r, "maker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.AcceptOfferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	taker := callerFrom(r)
	if err := s.chargeQuota(taker, req.FillAmountB); err != nil {
		s.writeError(w, err)
		return
	}
	var quote *otc.Quote
	err = s.execute(r.Context(), "accept_offer", func(tx *state.Tx) error {
		var err error
		quote, err = s.engine.AcceptOffer(tx, taker, maker, req.FillAmountB)
		return err
	})
	if err != nil {
		s.refundQuota(taker, req.FillAmountB)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewQuote(quote))
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	maker, err := identityParam(r, "maker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var refund *otc.Quote
	err = s.execute(r.Context(), "cancel_offer", func(tx *state.Tx) error {
		var err error
		refund, err = s.engine.CancelOffer(tx, callerFrom(r), maker)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewQuote(refund))
}

func (s *Server) handleExtendOffer(w http.ResponseWriter, r *http.Request) {
	maker, err := identityParam(r, "maker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req api.ExtendOfferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	var offer *otc.Offer
	err = s.execute(r.Context(), "extend_offer", func(tx *state.Tx) error {
		if err := s.engine.ExtendOffer(tx, callerFrom(r), maker, req.ExpirationTs); err != nil {
			return err
		}
		var err error
		offer, err = s.engine.GetOffer(tx, maker)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewOffer(offer))
}

// handleCloseOffer closes an expired offer. Any signed identity may call it.
func (s *Server) handleCloseOffer(w http.ResponseWriter, r *http.Request) {
	maker, err := identityParam(r, "maker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var offer *otc.Offer
	err = s.execute(r.Context(), "close_expired_offer", func(tx *state.Tx) error {
		var err error
		offer, err = s.engine.CloseExpiredOffer(tx, maker)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewOffer(offer))
}

func (s *Server) handleGetOffer(w http.ResponseWriter, r *http.Request) {
	maker, err := identityParam(r, "maker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var offer *otc.Offer
	err = s.view(func(tx *state.Tx) error {
		var err error
		offer, err = s.engine.GetOffer(tx, maker)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewOffer(offer))
}

func (s *Server) handleQuoteOffer(w http.ResponseWriter, r *http.Request) {
	maker, err := identityParam(r, "maker")
	if err != nil {
		s.writeError(w, err)
		return
	}
	fill, err := strconv.ParseUint(r.URL.Query().Get("fill"), 10, 64)
	if err != nil {
		s.writeError(w, badRequest("fill must be an unsigned integer"))
		return
	}
	var quote *otc.Quote
	err = s.view(func(tx *state.Tx) error {
		var err error
		quote, err = s.engine.QuoteFill(tx, maker, fill)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewQuote(quote))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := identityParam(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	mint, err := mintParam(r, "mint")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var amount uint64
	err = s.view(func(tx *state.Tx) error {
		var err error
		amount, err = tx.Balance(otc.Account{Owner: owner, Mint: mint})
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Balance{Owner: api.FormatIdentity(owner), Mint: api.FormatMint(mint), Amount: amount})
}
