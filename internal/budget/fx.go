package budget

import (
	"github.com/opencasehq/casebill/internal/budget/service"
	"go.uber.org/fx"
)

var Module = fx.Module("budget.ledger",
	fx.Provide(service.NewService),
)
