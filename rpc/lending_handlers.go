package rpc

import (
	"net/http"

	"meritlend/native/lending"
	"meritlend/observability"
)

type liquidityRequest struct {
	Lender string `json:"lender"`
	Amount string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) int {
	var req liquidityRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	lenderAddr, err := parseAddress("lender", req.Lender)
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.pool.DepositLiquidity(lenderAddr, amount)
	}); err != nil {
		return writeError(w, err)
	}
	return s.writePoolSnapshot(w)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) int {
	var req liquidityRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	lenderAddr, err := parseAddress("lender", req.Lender)
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.pool.WithdrawLiquidity(lenderAddr, amount)
	}); err != nil {
		return writeError(w, err)
	}
	return s.writePoolSnapshot(w)
}

type borrowRequest struct {
	Borrower   string `json:"borrower"`
	Amount     string `json:"amount"`
	Collateral string `json:"collateral"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) int {
	var req borrowRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		return writeBadRequest(w, err)
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return writeBadRequest(w, err)
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		return writeBadRequest(w, err)
	}
	var loan *lending.Loan
	if err := s.withLedgerLock(func() error {
		issued, err := s.pool.RequestLoan(borrower, amount, collateral)
		if err != nil {
			return err
		}
		loan = issued
		return nil
	}); err != nil {
		return writeError(w, err)
	}
	observability.Pool().RecordLoanOutcome("issued")
	s.recordPoolGauges()
	writeJSON(w, http.StatusOK, loanResponse(loan))
	return http.StatusOK
}

type repayRequest struct {
	Borrower string `json:"borrower"`
	LoanID   uint64 `json:"loanId"`
	Payment  string `json:"payment"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) int {
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		return writeBadRequest(w, err)
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.pool.RepayLoan(borrower, req.LoanID, payment)
	}); err != nil {
		return writeError(w, err)
	}
	observability.Pool().RecordLoanOutcome("repaid")
	s.recordPoolGauges()
	return s.writeLoan(w, req.LoanID)
}

type loanIDRequest struct {
	LoanID uint64 `json:"loanId"`
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) int {
	var req loanIDRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.pool.LiquidateLoan(req.LoanID)
	}); err != nil {
		return writeError(w, err)
	}
	observability.Pool().RecordLoanOutcome("liquidated")
	s.recordPoolGauges()
	return s.writeLoan(w, req.LoanID)
}

type anomalyRequest struct {
	Caller string `json:"caller"`
	User   string `json:"user"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleFlagAnomaly(w http.ResponseWriter, r *http.Request) int {
	var req anomalyRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return writeBadRequest(w, err)
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.pool.FlagAnomaly(caller, user, req.Reason)
	}); err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user.String()})
	return http.StatusOK
}

func (s *Server) handleClearAnomaly(w http.ResponseWriter, r *http.Request) int {
	var req anomalyRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		return writeBadRequest(w, err)
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		return writeBadRequest(w, err)
	}
	if err := s.withLedgerLock(func() error {
		return s.pool.ClearAnomaly(caller, user)
	}); err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"user": user.String()})
	return http.StatusOK
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) int {
	var req loanIDRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	return s.writeLoan(w, req.LoanID)
}

type borrowerRequest struct {
	Borrower string `json:"borrower"`
}

func (s *Server) handleGetInterestRate(w http.ResponseWriter, r *http.Request) int {
	var req borrowerRequest
	if err := decodeRequest(r, &req); err != nil {
		return writeBadRequest(w, err)
	}
	borrower, err := parseAddress("borrower", req.Borrower)
	if err != nil {
		return writeBadRequest(w, err)
	}
	rate, err := s.pool.GetInterestRate(borrower)
	if err != nil {
		return writeError(w, err)
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"ratePercent": rate})
	return http.StatusOK
}

func (s *Server) handleGetPoolSnapshot(w http.ResponseWriter, r *http.Request) int {
	return s.writePoolSnapshot(w)
}

type loanPayload struct {
	ID                 uint64 `json:"id"`
	Borrower           string `json:"borrower"`
	Principal          string `json:"principal"`
	CollateralAmount   string `json:"collateralAmount"`
	CollateralRatioBps uint64 `json:"collateralRatioBps"`
	StartTime          int64  `json:"startTime"`
	DueTime            int64  `json:"dueTime"`
	Status             string `json:"status"`
}

func loanResponse(loan *lending.Loan) loanPayload {
	payload := loanPayload{}
	if loan == nil {
		return payload
	}
	payload.ID = loan.ID
	payload.Borrower = loan.Borrower.String()
	if loan.Principal != nil {
		payload.Principal = loan.Principal.String()
	}
	if loan.CollateralAmount != nil {
		payload.CollateralAmount = loan.CollateralAmount.String()
	}
	payload.CollateralRatioBps = loan.CollateralRatioBps
	payload.StartTime = loan.StartTime
	payload.DueTime = loan.DueTime
	payload.Status = loan.Status.String()
	return payload
}

func (s *Server) writeLoan(w http.ResponseWriter, loanID uint64) int {
	loan, ok, err := s.pool.GetLoan(loanID)
	if err != nil {
		return writeError(w, err)
	}
	if !ok {
		return writeError(w, lending.ErrLoanDoesNotExist)
	}
	writeJSON(w, http.StatusOK, loanResponse(loan))
	return http.StatusOK
}

type poolSnapshotResponse struct {
	TotalLiquidity      string `json:"totalLiquidity"`
	TotalBorrowed       string `json:"totalBorrowed"`
	TotalInterestEarned string `json:"totalInterestEarned"`
	CustodyBalance      string `json:"custodyBalance"`
	UtilizationBps      uint64 `json:"utilizationBps"`
	MaxUtilizationBps   uint64 `json:"maxUtilizationBps"`
	LenderAPYPercent    uint64 `json:"lenderApyPercent"`
}

func (s *Server) writePoolSnapshot(w http.ResponseWriter) int {
	snapshot, err := s.pool.GetSnapshot()
	if err != nil {
		return writeError(w, err)
	}
	observability.Pool().RecordSnapshot(snapshot.TotalBorrowed, snapshot.TotalLiquidity, snapshot.UtilizationBps, snapshot.LenderAPYPercent)
	writeJSON(w, http.StatusOK, poolSnapshotResponse{
		TotalLiquidity:      snapshot.TotalLiquidity.String(),
		TotalBorrowed:       snapshot.TotalBorrowed.String(),
		TotalInterestEarned: snapshot.TotalInterestEarned.String(),
		CustodyBalance:      snapshot.CustodyBalance.String(),
		UtilizationBps:      snapshot.UtilizationBps,
		MaxUtilizationBps:   snapshot.MaxUtilizationBps,
		LenderAPYPercent:    snapshot.LenderAPYPercent,
	})
	return http.StatusOK
}

func (s *Server) recordPoolGauges() {
	snapshot, err := s.pool.GetSnapshot()
	if err != nil {
		return
	}
	observability.Pool().RecordSnapshot(snapshot.TotalBorrowed, snapshot.TotalLiquidity, snapshot.UtilizationBps, snapshot.LenderAPYPercent)
}
