package server

import (
	"errors"
	"net/http"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/services/lendingd/idempotency"
	"lendcore/services/lendingd/outbox"
)

var errForbidden = errors.New("account does not match token subject")

var (
	badRequest = []error{
		lending.ErrInvalidConfig, lending.ErrInvalidParams, lending.ErrSymbolMismatch,
		lending.ErrInvalidMemo, lending.ErrInvalidAmount, lending.ErrInvalidBorrowType,
		lending.ErrInvalidAccount, lending.ErrInvalidFeeToken, lending.ErrPrecisionMismatch,
		lending.ErrPrecisionTooLarge, lending.ErrNotCollateral, lending.ErrStableNotSupported,
		lending.ErrBidContract, lending.ErrQuantityOverflow, errBadRequest,
	}
	notFound = []error{
		lending.ErrPoolNotFound, lending.ErrLoanNotFound, lending.ErrCollateralNotFound,
		lending.ErrOrderNotFound, lending.ErrACLNotFound, lending.ErrDefendNotFound,
		lending.ErrHealthNotFound, lending.ErrUnknownPrice, outbox.ErrBatchNotFound,
	}
	conflict = []error{
		lending.ErrPoolExists, lending.ErrAnchorExists, lending.ErrShareExists,
		lending.ErrInsufficientDeposit, lending.ErrAmountTooSmall, lending.ErrInsufficientCollateral,
		lending.ErrInsufficientLoan, lending.ErrInsufficientBorrowable, lending.ErrExceedsWithdrawable,
		lending.ErrInsufficientBid, lending.ErrMiniRepayCap, lending.ErrNothingToSwap,
		lending.ErrNothingChanged,
	}
	forbidden = []error{
		lending.ErrAccountBlocked, lending.ErrFeatureClosed, lending.ErrPriceNotSet,
		nativecommon.ErrModulePaused, errForbidden,
	}
	unprocessable = []error{
		lending.ErrNegativeStableInterest, lending.ErrDefendCheck, lending.ErrNegativeEarn,
		idempotency.ErrKeyMismatch,
	}
	throttled = []error{
		nativecommon.ErrQuotaRequestsExceeded, nativecommon.ErrQuotaValueCapExceeded,
		nativecommon.ErrQuotaCounterOverflow,
	}
)

func matches(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps the engine error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case matches(err, badRequest):
		return http.StatusBadRequest
	case matches(err, notFound):
		return http.StatusNotFound
	case matches(err, conflict):
		return http.StatusConflict
	case matches(err, forbidden):
		return http.StatusForbidden
	case matches(err, unprocessable):
		return http.StatusUnprocessableEntity
	case matches(err, throttled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
