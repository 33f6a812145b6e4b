package eligibility

import (
	"github.com/opencasehq/casebill/internal/eligibility/service"
	"go.uber.org/fx"
)

var Module = fx.Module("eligibility.evaluator",
	fx.Provide(service.NewService),
)
