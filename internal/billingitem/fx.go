package billingitem

import (
	"github.com/opencasehq/casebill/internal/billingitem/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingitem.lifecycle",
	fx.Provide(
		service.NewService,
	),
)
