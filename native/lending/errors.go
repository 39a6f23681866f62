package lending

import "errors"

// Validation.
var (
	ErrInvalidConfig      = errors.New("lending engine: pool config invalid")
	ErrInvalidParams      = errors.New("lending engine: engine params invalid")
	ErrSymbolMismatch     = errors.New("lending engine: symbol mismatch")
	ErrInvalidMemo        = errors.New("lending engine: invalid memo")
	ErrInvalidAmount      = errors.New("lending engine: quantity must be positive")
	ErrInvalidBorrowType  = errors.New("lending engine: unsupported borrow type")
	ErrInvalidAccount     = errors.New("lending engine: target must be an account")
	ErrInvalidFeeToken    = errors.New("lending engine: fee token not accepted")
	ErrPrecisionMismatch  = errors.New("lending engine: share precision must equal anchor precision")
	ErrPrecisionTooLarge  = errors.New("lending engine: anchor precision too large")
	ErrPoolExists         = errors.New("lending engine: pool already exists")
	ErrAnchorExists       = errors.New("lending engine: pool with this anchor already exists")
	ErrShareExists        = errors.New("lending engine: pool with this share symbol already exists")
	ErrNotCollateral      = errors.New("lending engine: symbol cannot be collateral")
	ErrStableNotSupported = errors.New("lending engine: pool does not support stable borrow")
	ErrBidContract        = errors.New("lending engine: bid contract mismatch")
	ErrQuantityOverflow   = errors.New("lending engine: quantity out of range")
)

// Not found.
var (
	ErrPoolNotFound       = errors.New("lending engine: pool not found")
	ErrLoanNotFound       = errors.New("lending engine: loan not found")
	ErrCollateralNotFound = errors.New("lending engine: collateral not found")
	ErrOrderNotFound      = errors.New("lending engine: liquidation order not found")
	ErrACLNotFound        = errors.New("lending engine: access list entry not found")
	ErrDefendNotFound     = errors.New("lending engine: defend record not found")
	ErrHealthNotFound     = errors.New("lending engine: health record not found")
	ErrUnknownPrice       = errors.New("lending engine: oracle has no price")
)

// Insufficiency.
var (
	ErrInsufficientDeposit    = errors.New("lending engine: insufficient available deposit")
	ErrAmountTooSmall         = errors.New("lending engine: quantity is too small")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral quantity")
	ErrInsufficientLoan       = errors.New("lending engine: insufficient loan quantity")
	ErrInsufficientBorrowable = errors.New("lending engine: insufficient available loan quantity")
	ErrExceedsWithdrawable    = errors.New("lending engine: exceeds the max withdrawable quantity")
	ErrInsufficientBid        = errors.New("lending engine: insufficient available bid quantity")
	ErrMiniRepayCap           = errors.New("lending engine: mini repay value exceeds cap")
	ErrNothingToSwap          = errors.New("lending engine: no collateral to swap")
)

// Authorization.
var (
	ErrAccountBlocked = errors.New("lending engine: account is blocked")
	ErrFeatureClosed  = errors.New("lending engine: feature is closed")
	ErrPriceNotSet    = errors.New("lending engine: pool price not set")
)

// Economic invariants.
var (
	ErrNegativeStableInterest = errors.New("lending engine: cached stable interest must not be negative")
	ErrDefendCheck            = errors.New("lending engine: defend check failed")
	ErrNegativeEarn           = errors.New("lending engine: earn cannot be negative")
)

// Maintenance.
var (
	ErrNothingChanged = errors.New("lending engine: nothing changed")
)
