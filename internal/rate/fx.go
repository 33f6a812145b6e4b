package rate

import (
	"github.com/opencasehq/casebill/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.resolver",
	fx.Provide(service.NewService),
)
