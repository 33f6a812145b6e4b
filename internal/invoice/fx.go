package invoice

import (
	"github.com/opencasehq/casebill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.generator",
	fx.Provide(
		service.NewService,
	),
)
