package rpc

import (
	"fmt"
	"net/http"

	"meritlend/crypto"
	"meritlend/native/credit"
	"meritlend/observability/logging"
)

type bindIdentityRequest struct {
	Caller   string `json:"caller"`
	Identity string `json:"identity"`
	Wallet   string `json:"wallet"`
}

func (s *Server) handleBindIdentity(w http.ResponseWriter, r *http.Request) int {
	var req bindIdentityRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return writeBadRequest(w, err)
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		return writeBadRequest(w, err)
	}
	identity, err := crypto.ParseIdentityHash(req.Identity)
	if err != nil {
		return writeBadRequest(w, fmt.Errorf("invalid identity: %w", err))
	}
	if err := s.withLedgerLock(func() error {
		return s.credit.BindIdentity(caller, identity, wallet)
	}); err != nil {
		s.logger.Info("identity bind rejected",
			"wallet", wallet.String(),
			logging.MaskField("identity", req.Identity),
			"error", err.Error())
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"wallet":   wallet.String(),
		"identity": identity.String(),
	})
	return http.StatusOK
}

type setScoreRequest struct {
	Caller string `json:"caller"`
	Wallet string `json:"wallet"`
	Score  uint64 `json:"score"`
}

func (s *Server) handleSetVerifiedScore(w http.ResponseWriter, r *http.Request) int {
	var req setScoreRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return writeBadRequest(w, err)
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.credit.SetVerifiedScore(caller, wallet, req.Score)
	}); err != nil {
		return writeError(w, err)
	}
	return s.writeProfile(w, wallet)
}

type walletRequest struct {
	Wallet string `json:"wallet"`
}

func (s *Server) handleApplyDecay(w http.ResponseWriter, r *http.Request) int {
	var req walletRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.credit.ApplyDecay(wallet)
	}); err != nil {
		return writeError(w, err)
	}
	return s.writeProfile(w, wallet)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) int {
	var req walletRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		return writeBadRequest(w, err)
	}
	return s.writeProfile(w, wallet)
}

type requiredCollateralRequest struct {
	Wallet string `json:"wallet"`
	Amount string `json:"amount"`
}

func (s *Server) handleRequiredCollateral(w http.ResponseWriter, r *http.Request) int {
	var req requiredCollateralRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return writeBadRequest(w, err)
	}
	required, err := s.credit.RequiredCollateral(wallet, amount)
	if err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"wallet":   wallet.String(),
		"amount":   amount.String(),
		"required": required.String(),
	})
	return http.StatusOK
}

type profileResponse struct {
	Wallet             string `json:"wallet"`
	Score              uint64 `json:"score"`
	Tier               uint8  `json:"tier"`
	CollateralRatioBps uint64 `json:"collateralRatioBps"`
	TotalLoans         uint64 `json:"totalLoans"`
	RepaidLoans        uint64 `json:"repaidLoans"`
	LastUpdated        int64  `json:"lastUpdated"`
	LastActivity       int64  `json:"lastActivity"`
}

func (s *Server) writeProfile(w http.ResponseWriter, wallet crypto.Address) int {
	profile, ok, err := s.credit.GetProfile(wallet)
	if err != nil {
		return writeError(w, err)
	}
	if !ok {
		// Unseen wallets read as tier-0 defaults.
		profile = &credit.Profile{
			Address:            wallet,
			CollateralRatioBps: credit.DefaultCollateralRatioBps,
		}
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Wallet:             wallet.String(),
		Score:              profile.Score,
		Tier:               uint8(profile.Tier),
		CollateralRatioBps: profile.CollateralRatioBps,
		TotalLoans:         profile.TotalLoans,
		RepaidLoans:        profile.RepaidLoans,
		LastUpdated:        profile.LastUpdated,
		LastActivity:       profile.LastActivity,
	})
	return http.StatusOK
}
