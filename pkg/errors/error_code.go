package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeInvalidRange         ErrorCode = 103
	ErrCodeInvalidFrequency     ErrorCode = 104
	ErrCodeInsufficientData     ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106
	ErrCodeInvalidVersion       ErrorCode = 107
	ErrCodeInvalidCalendar      ErrorCode = 108
	ErrCodeInvalidAggregation   ErrorCode = 109

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound       ErrorCode = 200
	ErrCodeUnknownSymbol      ErrorCode = 201
	ErrCodeQueryFailed        ErrorCode = 202
	ErrCodeBundleNotFound     ErrorCode = 203
	ErrCodeBundleGap          ErrorCode = 204
	ErrCodeBundleWriteFailed  ErrorCode = 205
	ErrCodeHistoryUnavailable ErrorCode = 206
	ErrCodeLookAheadViolation ErrorCode = 207

	// Asset errors (300-399)
	ErrCodeAssetNotFound    ErrorCode = 300
	ErrCodeAssetNotTradable ErrorCode = 301

	// Strategy errors (400-499)
	ErrCodeStrategyNotLoaded   ErrorCode = 400
	ErrCodeStrategyConfigError ErrorCode = 401
	ErrCodeCallbackFailed      ErrorCode = 402

	// Trading errors (500-599)
	ErrCodeOrderRejected     ErrorCode = 500
	ErrCodeOrderNotFound     ErrorCode = 501
	ErrCodeInsufficientFunds ErrorCode = 502
	ErrCodeOrderTerminal     ErrorCode = 503

	// Ledger errors (600-699)
	ErrCodeLedgerStateNil     ErrorCode = 600
	ErrCodeMarkToMarketFailed ErrorCode = 601
	ErrCodeJournalWriteFailed ErrorCode = 602

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 701
	ErrCodeIngestFailed          ErrorCode = 702
)
