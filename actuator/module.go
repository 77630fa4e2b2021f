// Package actuator is a module that exposes the runtime over HTTP: health,
// build info, loaded modules and screens, registered capabilities, metrics,
// and an endpoint that dispatches actions onto the bus.
package actuator

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/composer/bus"
	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/config"
	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/metrics"
	"github.com/skekre98/composer/module"
	"github.com/skekre98/composer/web"
)

const ID = "actuator"

// Use-case keys.
const (
	HealthUseCase = "health"
	InfoUseCase   = "info"
)

// Deps is what the actuator inspects. Metrics may be nil.
type Deps struct {
	Config    config.Root
	Modules   *module.Registry
	Providers *capability.Registry
	Bus       *bus.Bus
	Metrics   *metrics.Collector
}

// Health is the health use-case's report.
type Health struct {
	Status  string          `json:"status"`
	Modules map[string]bool `json:"modules"`
}

// HealthCheck reports UP when every registered module is loaded.
type HealthCheck func() Health

// Info is the info use-case's report.
type Info struct {
	App     config.AppInfo `json:"app"`
	Runtime RuntimeInfo    `json:"runtime"`
}

type RuntimeInfo struct {
	Go           string `json:"go"`
	NumGoroutine int    `json:"numGoroutine"`
	Time         string `json:"time"`
	PID          int    `json:"pid"`
}

// Module returns the actuator module definition.
func Module(d Deps) (module.Definition, error) {
	health := func() Health {
		h := Health{Status: "UP", Modules: map[string]bool{}}
		for _, m := range d.Modules.Modules() {
			h.Modules[m.ID] = m.Loaded()
			if !m.Loaded() {
				h.Status = "DOWN"
			}
		}
		return h
	}
	info := func() Info {
		return Info{
			App: d.Config.App,
			Runtime: RuntimeInfo{
				Go:           runtime.Version(),
				NumGoroutine: runtime.NumGoroutine(),
				Time:         time.Now().UTC().Format(time.RFC3339),
				PID:          os.Getpid(),
			},
		}
	}

	return module.New(ID, "Actuator").
		Requires(capability.HTTPCapability, capability.LoggerCapability).
		UseCase(HealthUseCase, module.Provide(func(capability.Adapters) HealthCheck { return health })).
		UseCase(InfoUseCase, module.Provide(func(capability.Adapters) func() Info { return info })).
		OnInit(func(_ context.Context, adapters capability.Adapters) error {
			srv, err := capability.As[*web.Server](adapters, capability.HTTPCapability)
			if err != nil {
				return err
			}
			mount(srv.Router().Group(d.Config.Actuator.BasePath), d, health, info)
			capability.LoggerFrom(adapters).Info("actuator mounted", "basePath", d.Config.Actuator.BasePath)
			return nil
		}).
		Build()
}

type moduleView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Loaded       bool     `json:"loaded"`
	Requires     []string `json:"requires"`
	Screens      []string `json:"screens"`
	UseCases     []string `json:"useCases"`
	InitialRoute string   `json:"initialRoute,omitempty"`
}

type screenView struct {
	Module  string         `json:"module"`
	Name    string         `json:"name"`
	Options map[string]any `json:"options,omitempty"`
}

type dispatchView struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func mount(group web.Router, d Deps, health func() Health, info func() Info) {
	group.GET("/health", func(c *gin.Context) {
		h := health()
		status := http.StatusOK
		if h.Status != "UP" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	})

	group.GET("/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, info())
	})

	group.GET("/modules", func(c *gin.Context) {
		mods := d.Modules.Modules()
		out := make([]moduleView, 0, len(mods))
		for _, m := range mods {
			v := moduleView{
				ID:           m.ID,
				Name:         m.Name,
				Loaded:       m.Loaded(),
				Requires:     append([]string{}, m.Requires...),
				Screens:      []string{},
				UseCases:     []string{},
				InitialRoute: m.InitialRoute,
			}
			for _, s := range m.Screens {
				v.Screens = append(v.Screens, s.Name)
			}
			for _, u := range m.UseCases {
				v.UseCases = append(v.UseCases, module.UseCaseKey(m.ID, u.Key))
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, out)
	})

	group.GET("/screens", func(c *gin.Context) {
		refs := d.Modules.Screens()
		out := make([]screenView, 0, len(refs))
		for _, r := range refs {
			out = append(out, screenView{Module: r.ModuleID, Name: r.Screen.Name, Options: r.Screen.Options})
		}
		c.JSON(http.StatusOK, out)
	})

	group.GET("/capabilities", func(c *gin.Context) {
		all := d.Providers.All()
		out := make(map[string]string, len(all))
		for _, name := range all.Names() {
			out[name] = all[name].Capability()
		}
		c.JSON(http.StatusOK, out)
	})

	group.POST("/actions/:type", func(c *gin.Context) {
		action := bus.Action{Type: c.Param("type")}
		if c.Request.ContentLength != 0 {
			var payload any
			if err := c.ShouldBindJSON(&payload); err != nil {
				web.WriteProblem(c, http.StatusBadRequest, "payload must be JSON", map[string]any{"error": err.Error()})
				return
			}
			action.Payload = payload
		}
		res := d.Bus.Dispatch(c.Request.Context(), action)
		if !res.Success {
			c.JSON(http.StatusUnprocessableEntity, dispatchView{
				Error: res.Err.Error(),
				Code:  string(core.CodeOf(res.Err)),
			})
			return
		}
		c.JSON(http.StatusOK, dispatchView{Success: true, Data: res.Data})
	})

	if d.Config.Observability.Metrics.Enabled && d.Metrics != nil {
		group.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
}
