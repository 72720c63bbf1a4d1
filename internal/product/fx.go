package product

import (
	"github.com/smallbiznis/productdesk/internal/product/changefeed"
	"github.com/smallbiznis/productdesk/internal/product/repository"
	"github.com/smallbiznis/productdesk/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	changefeed.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
