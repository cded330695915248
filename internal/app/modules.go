package app

import (
	"github.com/specialistvlad/mlgridgo/internal/catalog"
	"github.com/specialistvlad/mlgridgo/plugins/constant"
	"github.com/specialistvlad/mlgridgo/plugins/env_vars"
	"github.com/specialistvlad/mlgridgo/plugins/http_fetch"
	"github.com/specialistvlad/mlgridgo/plugins/mlflow_log"
	"github.com/specialistvlad/mlgridgo/plugins/print"
	"github.com/specialistvlad/mlgridgo/plugins/split"
)

// coreModules is the definitive list of all plugins that are compiled into
// the mlgridgo binary.
var coreModules = []catalog.Module{
	&constant.Module{},
	&print.Module{},
	&env_vars.Module{},
	&split.Module{},
	&http_fetch.Module{},
	&mlflow_log.Module{},
}
