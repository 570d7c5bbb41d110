package delivery

import (
	"github.com/smallbiznis/nftcheckout/internal/delivery/minter"
	"github.com/smallbiznis/nftcheckout/internal/delivery/repository"
	"github.com/smallbiznis/nftcheckout/internal/delivery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery.service",
	fx.Provide(repository.Provide),
	fx.Provide(minter.NewClient),
	fx.Provide(service.New),
)
