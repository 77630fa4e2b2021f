package web

// Options configures a Server.
type Options struct {
	// Routes are mounted when the server is built, before any module's init hook.
	Routes []func(r Router)
	// Middlewares run after the built-in request id, recovery and access log.
	Middlewares []Handler
	// Mode is the gin mode; defaults to release.
	Mode string
}

type Option func(*Options)

func WithRoutes(f func(r Router)) Option {
	return func(o *Options) { o.Routes = append(o.Routes, f) }
}

func WithMiddlewares(m ...Handler) Option {
	return func(o *Options) { o.Middlewares = append(o.Middlewares, m...) }
}

func WithMode(mode string) Option {
	return func(o *Options) { o.Mode = mode }
}
