package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"lendcore/core/state"
	"lendcore/core/types"
	"lendcore/native/lending"
	"lendcore/observability"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type transferRequest struct {
	From     string `json:"from"`
	Contract string `json:"contract"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type actionRequest struct {
	Account  string `json:"account"`
	Contract string `json:"contract"`
	Quantity string `json:"quantity"`
	Pool     string `json:"pool"`
	Type     string `json:"type"`
}

type addPoolRequest struct {
	Name      string             `json:"name"`
	Anchor    string             `json:"anchor"`
	Share     string             `json:"share"`
	MaxSupply int64              `json:"max_supply"`
	Config    lending.PoolConfig `json:"config"`
}

type setRateRequest struct {
	Pools    []string        `json:"pools"`
	BaseRate decimal.Decimal `json:"base_rate"`
	MaxRate  decimal.Decimal `json:"max_rate"`
}

type featuresRequest struct {
	Features []lending.FeaturePerm `json:"features"`
}

type aclRequest struct {
	Account  string `json:"account"`
	Feature  string `json:"feature"`
	Duration string `json:"duration"`
}

type priceRequest struct {
	Token string          `json:"token"`
	Price decimal.Decimal `json:"price"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type interestRequest struct {
	Pools []string `json:"pools"`
}

type healthRequest struct {
	Threshold float64 `json:"threshold"`
}

type outcomeResponse struct {
	Effects  []lending.Effect        `json:"effects"`
	Snapshot *state.SnapshotInfo     `json:"snapshot,omitempty"`
	BatchID  *uuid.UUID              `json:"batch_id,omitempty"`
	Summary  *lending.RefreshSummary `json:"summary,omitempty"`
	Count    *int                    `json:"count,omitempty"`
}

// accountName folds an account to its canonical NFKC lower-case form.
func accountName(raw string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(raw)))
}

type normalizer interface {
	normalize()
}

func (r *transferRequest) normalize() { r.From = accountName(r.From) }
func (r *actionRequest) normalize()   { r.Account = accountName(r.Account) }
func (r *aclRequest) normalize()      { r.Account = accountName(r.Account) }

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		observability.ModuleMetrics().RecordThrottle(moduleName, "quota")
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseQuantity(raw string) (types.Asset, error) {
	q, err := types.ParseAsset(raw)
	if err != nil {
		return types.Asset{}, fmt.Errorf("%w: quantity: %v", errBadRequest, err)
	}
	return q, nil
}

func parseToken(raw string) (types.ExtendedSymbol, error) {
	token, err := types.ParseExtendedSymbol(raw)
	if err != nil {
		return types.ExtendedSymbol{}, fmt.Errorf("%w: token: %v", errBadRequest, err)
	}
	return token, nil
}

func parseLoanType(raw string) (lending.LoanType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "variable", "1":
		return lending.LoanVariable, nil
	case "stable", "2":
		return lending.LoanStable, nil
	default:
		return 0, fmt.Errorf("%w: %q", lending.ErrInvalidBorrowType, raw)
	}
}

// parseDuration accepts Go durations; empty means no expiry.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: duration %q", errBadRequest, raw)
	}
	return d, nil
}

func parseLimit(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
