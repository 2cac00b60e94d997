package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionUserInitialized  = "user.initialized"
	ActionUploadRecorded   = "upload.recorded"
	ActionDeletionRecorded = "deletion.recorded"
	ActionQuotaExceeded    = "quota.exceeded"

	// Upgrade actions
	ActionQuotaUpgraded    = "quota.upgraded"
	ActionPackagePurchased = "package.purchased"
	ActionPaymentRefunded  = "payment.refunded"

	// Administrative actions
	ActionPackageCreated       = "package.created"
	ActionPackageActivated     = "package.activated"
	ActionPackageDeactivated   = "package.deactivated"
	ActionQuotaOverridden      = "quota.overridden"
	ActionPriceUpdated         = "price.updated"
	ActionFundsWithdrawn       = "funds.withdrawn"
	ActionOwnershipTransferred = "ownership.transferred"
)

// Resource constants for audit events.
const (
	ResourceQuota   = "quota"
	ResourcePackage = "package"
	ResourcePayment = "payment"
	ResourcePrice   = "price"
	ResourceOwner   = "owner"
)

// Category constants for audit events.
const (
	CategoryUsage   = "usage"
	CategoryAccess  = "access"
	CategoryPayment = "payment"
	CategoryAdmin   = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
