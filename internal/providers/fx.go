package providers

import (
	"github.com/smallbiznis/nftcheckout/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
)
