package quota

import (
	"github.com/xraph/quota/id"
	"github.com/xraph/quota/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Principal is re-exported from types package.
type Principal = types.Principal

// ID is the identifier type for transfer receipts and audit events.
type ID = id.ID

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	JPY  = types.JPY
	Zero = types.Zero
)

// Re-export size units and bounds.
const (
	KiB = types.KiB
	MiB = types.MiB
	GiB = types.GiB
	TiB = types.TiB

	DefaultQuota = types.DefaultQuota
	MaxFileSize  = types.MaxFileSize
	MaxQuota     = types.MaxQuota
)
