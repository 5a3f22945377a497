package wire

// Server versions at which message layouts change.
const (
	VersionOptionalCapabilities = 72
	VersionModelsSupport        = 103
	VersionMdSizeMultiplier     = 110
	VersionAggGroup             = 121
	VersionUnderlyingInfo       = 122
	VersionMarketRules          = 126
	VersionMarketCapPrice       = 131
	VersionRealExpirationDate   = 134
	VersionLastLiquidity        = 136
	VersionOrderContainer       = 145
	VersionPriceMgmtAlgo        = 151
	VersionDuration             = 158
	VersionPostToATS            = 160
	VersionStockType            = 161
	VersionAutoCancelParent     = 162
	VersionSizeRules            = 164
	VersionAdvancedOrderReject  = 166
	VersionManualOrderTime      = 169
	VersionBondIssuerID         = 176
	VersionFAProfileDesupport   = 177
)

// Supported negotiation window.
const (
	MinClientVersion = 100
	MaxClientVersion = 176
)
