package checkout

import (
	"github.com/smallbiznis/nftcheckout/internal/catalog"
	"github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	"github.com/smallbiznis/nftcheckout/internal/checkout/repository"
	"github.com/smallbiznis/nftcheckout/internal/checkout/service"
	paypalapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/paypal"
	razorpayapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/razorpay"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		func(c *paypalapi.Client) domain.PayPalGateway { return c },
		func(c *razorpayapi.Client) domain.RazorpayGateway { return c },
		func(c *catalog.Client) domain.Catalog { return c },
	),
	fx.Provide(service.New),
)
