package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown  ErrorCode = 1
	ErrCodeInternal ErrorCode = 2

	// Validation errors (100-199)
	ErrCodeInvalidParameter    ErrorCode = 100
	ErrCodeInvalidOrderRequest ErrorCode = 101
	ErrCodeInvalidQuantity     ErrorCode = 102
	ErrCodeMissingLimitPrice   ErrorCode = 103
	ErrCodeUnknownSymbol       ErrorCode = 104
	ErrCodeUnknownOwner        ErrorCode = 105

	// Risk rejections (200-299)
	ErrCodeInsufficientMargin     ErrorCode = 200
	ErrCodePositionLimitExceeded  ErrorCode = 201
	ErrCodeOrderValueExceeded     ErrorCode = 202
	ErrCodeDailyLossLimitExceeded ErrorCode = 203
	ErrCodeConcentrationExceeded  ErrorCode = 204

	// Matching errors (300-399)
	ErrCodeInsufficientLiquidity ErrorCode = 300
	ErrCodeNotFillable           ErrorCode = 301

	// Lifecycle errors (400-499)
	ErrCodeOrderNotFound    ErrorCode = 400
	ErrCodePositionNotFound ErrorCode = 401
	ErrCodePortfolioMissing ErrorCode = 402

	// Persistence errors (500-599)
	ErrCodePersistenceFailure ErrorCode = 500
	ErrCodeQueryFailed        ErrorCode = 501
	ErrCodeReplayFailed       ErrorCode = 502

	// Configuration errors (600-699)
	ErrCodeConfigParseFailed     ErrorCode = 600
	ErrCodeInvalidConfiguration  ErrorCode = 601
	ErrCodeSchemaVersionMismatch ErrorCode = 602

	// Pricing errors (700-799)
	ErrCodePriceUnavailable ErrorCode = 700

	// Event errors (800-899)
	ErrCodePublishFailed ErrorCode = 800
)

// IsRiskRejection reports whether the error carries one of the pre-trade
// risk rejection codes (200-299).
func IsRiskRejection(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeInsufficientMargin && code <= ErrCodeConcentrationExceeded
}

// IsOrderRejection reports whether the error represents an expected,
// user-visible order rejection (risk rejections plus matching failures),
// as opposed to an internal fault.
func IsOrderRejection(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeInsufficientMargin && code <= ErrCodeNotFillable
}
