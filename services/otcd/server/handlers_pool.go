package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"otcpool/core/state"
	"otcpool/native/otc"
	"otcpool/services/otcd/api"
)

func decodeBody(r *http.Request, v any) error {
	req, ok := signedFromContext(r.Context())
	if !ok {
		return errMissingSignature
	}
	if len(req.Body) == 0 {
		return badRequest("request body required")
	}
	if err := json.Unmarshal(req.Body, v); err != nil {
		return badRequest("invalid json: " + err.Error())
	}
	return nil
}

func identityParam(r *http.Request, name string) (otc.Address, error) {
	addr, err := api.ParseIdentity(chi.URLParam(r, name))
	if err != nil {
		return otc.Address{}, badRequest("invalid " + name)
	}
	return addr, nil
}

func mintParam(r *http.Request, name string) (otc.Address, error) {
	mint, err := api.ParseMint(chi.URLParam(r, name))
	if err != nil {
		return otc.Address{}, badRequest("invalid " + name)
	}
	return mint, nil
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	var pool *otc.Pool
	err := s.view(func(tx *state.Tx) error {
		var err error
		pool, err = s.engine.GetPool(tx)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewPool(pool))
}

func (s *Server) handleInitPool(w http.ResponseWriter, r *http.Request) {
	var req api.InitPoolRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	treasury, err := api.ParseIdentity(req.Treasury)
	if err != nil {
		s.writeError(w, badRequest("invalid treasury"))
		return
	}
	mints := make([]otc.Address, 0, len(req.WhitelistedMints))
	for _, raw := range req.WhitelistedMints {
		mint, err := api.ParseMint(raw)
		if err != nil {
			s.writeError(w, badRequest("invalid whitelisted mint "+raw))
			return
		}
		mints = append(mints, mint)
	}
	params := otc.InitParams{
		MaxPartners:       req.MaxPartners,
		FeeBps:            req.FeeBps,
		Treasury:          treasury,
		MinSwapAmount:     req.MinSwapAmount,
		MaxExpirationSecs: req.MaxExpirationSecs,
		WhitelistedMints:  mints,
	}
	var pool *otc.Pool
	err = s.execute(r.Context(), "initialize_pool", func(tx *state.Tx) error {
		var err error
		pool, err = s.engine.InitializePool(tx, callerFrom(r), params)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.NewPool(pool))
}

// governance runs a pool mutator and replies with the resulting pool.
func (s *Server) governance(w http.ResponseWriter, r *http.Request, operation string, fn func(tx *state.Tx, caller otc.Address) error) {
	caller := callerFrom(r)
	var pool *otc.Pool
	err := s.execute(r.Context(), operation, func(tx *state.Tx) error {
		if err := fn(tx, caller); err != nil {
			return err
		}
		var err error
		pool, err = s.engine.GetPool(tx)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewPool(pool))
}

func (s *Server) handleTransferAuthority(w http.ResponseWriter, r *http.Request) {
	var req api.AddressRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	next, err := api.ParseIdentity(req.Address)
	if err != nil {
		s.writeError(w, badRequest("invalid address"))
		return
	}
	s.governance(w, r, "transfer_authority", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.TransferAuthority(tx, caller, next)
	})
}

func (s *Server) handleUpdateTreasury(w http.ResponseWriter, r *http.Request) {
	var req api.AddressRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	treasury, err := api.ParseIdentity(req.Address)
	if err != nil {
		s.writeError(w, badRequest("invalid address"))
		return
	}
	s.governance(w, r, "update_treasury", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.UpdateTreasury(tx, caller, treasury)
	})
}

func (s *Server) handleAddMint(w http.ResponseWriter, r *http.Request) {
	mint, err := mintParam(r, "mint")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.governance(w, r, "add_whitelisted_mint", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.AddWhitelistedMint(tx, caller, mint)
	})
}

func (s *Server) handleRemoveMint(w http.ResponseWriter, r *http.Request) {
	mint, err := mintParam(r, "mint")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.governance(w, r, "remove_whitelisted_mint", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.RemoveWhitelistedMint(tx, caller, mint)
	})
}

func (s *Server) handleAddPartner(w http.ResponseWriter, r *http.Request) {
	partner, err := identityParam(r, "partner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.governance(w, r, "add_partner", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.AddPartner(tx, caller, partner)
	})
}

func (s *Server) handleRemovePartner(w http.ResponseWriter, r *http.Request) {
	partner, err := identityParam(r, "partner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.governance(w, r, "remove_partner", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.RemovePartner(tx, caller, partner)
	})
}

func pairParams(r *http.Request) (otc.Address, otc.Address, error) {
	mintA, err := mintParam(r, "mintA")
	if err != nil {
		return otc.Address{}, otc.Address{}, err
	}
	mintB, err := mintParam(r, "mintB")
	if err != nil {
		return otc.Address{}, otc.Address{}, err
	}
	return mintA, mintB, nil
}

func (s *Server) handleAddPair(w http.ResponseWriter, r *http.Request) {
	mintA, mintB, err := pairParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.governance(w, r, "add_supported_pair", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.AddSupportedPair(tx, caller, mintA, mintB)
	})
}

func (s *Server) handleRemovePair(w http.ResponseWriter, r *http.Request) {
	mintA, mintB, err := pairParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.governance(w, r, "remove_supported_pair", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.RemoveSupportedPair(tx, caller, mintA, mintB)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.governance(w, r, "pause_pool", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.PausePool(tx, caller)
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.governance(w, r, "resume_pool", func(tx *state.Tx, caller otc.Address) error {
		return s.engine.ResumePool(tx, caller)
	})
}
