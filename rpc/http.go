package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"meritlend/crypto"
	nativecommon "meritlend/native/common"
	"meritlend/native/credit"
	"meritlend/native/escrow"
	"meritlend/native/lending"
)

const requestLimit = 1 << 20 // 1 MiB

type errorResponse struct {
	Error string `json:"error"`
}

func decodeRequest(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, requestLimit)
	defer body.Close()
	payload, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return fmt.Errorf("empty request body")
	}
	decoder := json.NewDecoder(strings.NewReader(string(payload)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) int {
	status := statusForError(err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
	return status
}

func writeBadRequest(w http.ResponseWriter, err error) int {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	return http.StatusBadRequest
}

// statusForError maps engine sentinel errors onto HTTP status codes so
// clients can discriminate refusal causes without string matching.
func statusForError(err error) int {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, credit.ErrUnauthorized),
		errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrLoanDoesNotExist):
		return http.StatusNotFound
	case errors.Is(err, credit.ErrAlreadyBound),
		errors.Is(err, lending.ErrLoanAlreadyRepaid),
		errors.Is(err, lending.ErrLoanAlreadyLiquidated):
		return http.StatusConflict
	case errors.Is(err, lending.ErrTransferFailed),
		errors.Is(err, escrow.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func parseAddress(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: expected base-10 integer", field)
	}
	return amount, nil
}
