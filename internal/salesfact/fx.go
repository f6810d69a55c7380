package salesfact

import (
	"github.com/smallbiznis/fluxdrive/internal/salesfact/service"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/source"
	"go.uber.org/fx"
)

var Module = fx.Module("salesfact.service",
	fx.Provide(source.Provide),
	fx.Provide(service.NewService),
)
