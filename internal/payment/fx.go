package payment

import (
	"github.com/smallbiznis/nftcheckout/internal/config"
	"github.com/smallbiznis/nftcheckout/internal/payment/adapters"
	"github.com/smallbiznis/nftcheckout/internal/payment/adapters/paypal"
	"github.com/smallbiznis/nftcheckout/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/nftcheckout/internal/payment/domain"
	paypalapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/paypal"
	razorpayapi "github.com/smallbiznis/nftcheckout/internal/payment/gateway/razorpay"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(
		func(cfg config.Config, log *zap.Logger) *paypalapi.Client {
			return paypalapi.NewClient(cfg.PayPal, log)
		},
		func(cfg config.Config, log *zap.Logger) *razorpayapi.Client {
			return razorpayapi.NewClient(cfg.Razorpay, log)
		},
		NewRegistry,
	),
)

// NewRegistry wires both gateway adapters with their webhook settings.
func NewRegistry(cfg config.Config, paypalClient *paypalapi.Client) *adapters.Registry {
	return adapters.NewRegistry(
		razorpay.NewFactory(),
		paypal.NewFactory(paypalClient),
	).WithConfig(domain.GatewayRazorpay, domain.AdapterConfig{
		Config: map[string]any{"webhook_secret": cfg.Razorpay.WebhookSecret},
	}).WithConfig(domain.GatewayPayPal, domain.AdapterConfig{
		Config: map[string]any{"webhook_id": cfg.PayPal.WebhookID},
	})
}
