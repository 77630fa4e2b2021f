package module_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/core"
	"github.com/skekre98/composer/metrics"
	"github.com/skekre98/composer/module"
)

type provider string

func (p provider) Capability() string { return string(p) }

type fixture struct {
	c         *core.Container
	providers *capability.Registry
	modules   *module.Registry
}

func newFixture(t *testing.T, caps ...string) fixture {
	t.Helper()
	c := core.NewContainer()
	providers := capability.NewRegistry(c)
	for _, name := range caps {
		require.NoError(t, providers.Register(name, provider(name)))
	}
	return fixture{c: c, providers: providers, modules: module.NewRegistry(c, providers)}
}

func TestRegister_MissingCapabilities(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "a")
	def := module.Definition{
		ID:       "m1",
		Requires: []string{"a", "b", "c"},
		Screens:  []module.Screen{{Name: "home"}},
	}

	_, err := f.modules.Register(context.Background(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMissingCapabilities)
	assert.Equal(t, core.CodeValidation, core.CodeOf(err))
	assert.Contains(t, err.Error(), "b")
	assert.Contains(t, err.Error(), "c")

	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"b", "c"}, cerr.Context["missing"])
	assert.False(t, f.modules.Has("m1"))
}

func TestRegister_MissingHTTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "storage")
	def := module.New("web", "Web").Requires("http").Screen("home", nil).MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires missing capabilities: http")
}

func TestRegister_ShapeCheckedAfterCapabilities(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.modules.Register(context.Background(), module.Definition{ID: "empty"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidModuleShape)
	assert.Contains(t, err.Error(), "must have at least one screen or one UseCase")

	_, err = f.modules.Register(context.Background(), module.Definition{ID: "empty", Requires: []string{"x"}})
	assert.ErrorIs(t, err, core.ErrMissingCapabilities)
}

func TestRegister_UseCaseIsLazySingleton(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "storage")
	calls := 0
	def := module.New("m1", "Module").
		Requires("storage").
		UseCase("uc", func(a capability.Adapters) (any, error) {
			calls++
			return &struct{ adapters capability.Adapters }{a}, nil
		}).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	first, err := f.c.Resolve(module.UseCaseKey("m1", "uc"))
	require.NoError(t, err)
	second, err := f.c.Resolve("m1:uc")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestRegister_AdaptersAreNarrowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "storage", "http", "logger")
	var seen capability.Adapters
	def := module.New("m1", "Module").
		Requires("storage").
		UseCase("uc", func(a capability.Adapters) (any, error) { return a, nil }).
		OnInit(func(_ context.Context, a capability.Adapters) error {
			seen = a
			return nil
		}).
		MustBuild()

	mod, err := f.modules.Register(context.Background(), def)
	require.NoError(t, err)

	assert.Equal(t, []string{"storage"}, seen.Names())
	assert.Equal(t, []string{"storage"}, mod.Adapters.Names())

	got, err := module.ResolveUseCase[capability.Adapters](f.c, "m1", "uc")
	require.NoError(t, err)
	assert.Equal(t, []string{"storage"}, got.Names())
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	def := module.New("m1", "Module").Screen("home", nil).MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.NoError(t, err)
	_, err = f.modules.Register(context.Background(), def)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
	assert.Len(t, f.modules.Modules(), 1)
}

func TestRegister_InitFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	boom := errors.New("boom")
	def := module.New("m1", "Module").
		UseCase("uc", func(capability.Adapters) (any, error) { return 1, nil }).
		OnInit(func(context.Context, capability.Adapters) error { return boom }).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.ErrorIs(t, err, boom)

	mod, ok := f.modules.Module("m1")
	require.True(t, ok)
	assert.False(t, mod.Loaded())
	assert.True(t, f.c.Has("m1:uc"))

	require.NoError(t, f.modules.Unregister(context.Background(), "m1"))
	assert.False(t, f.modules.Has("m1"))
	assert.False(t, f.c.Has("m1:uc"))
}

func TestRegister_InitPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	def := module.New("m1", "Module").
		Screen("home", nil).
		OnInit(func(context.Context, capability.Adapters) error { panic("nope") }).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHandlerPanic)
}

func TestUnregister_RemovesUseCasesAfterDestroy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var resolvedInDestroy bool
	def := module.New("m1", "Module").
		UseCase("uc", func(capability.Adapters) (any, error) { return "v", nil }).
		OnDestroy(func(context.Context) error {
			_, ok := f.c.TryResolve("m1:uc")
			resolvedInDestroy = ok
			return nil
		}).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.NoError(t, err)
	require.True(t, f.c.Has("m1:uc"))

	require.NoError(t, f.modules.Unregister(context.Background(), "m1"))
	assert.True(t, resolvedInDestroy)

	_, err = f.c.Resolve("m1:uc")
	assert.ErrorIs(t, err, core.ErrDependencyNotRegistered)
	assert.False(t, f.modules.Has("m1"))
}

func TestUnregister_DestroyErrorAfterCleanup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	boom := errors.New("boom")
	def := module.New("m1", "Module").
		UseCase("uc", func(capability.Adapters) (any, error) { return "v", nil }).
		OnDestroy(func(context.Context) error { return boom }).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.NoError(t, err)

	err = f.modules.Unregister(context.Background(), "m1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.modules.Has("m1"))
	assert.False(t, f.c.Has("m1:uc"))
}

func TestUnregister_DestroysModuleWhoseInitFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	destroyed := false
	def := module.New("m1", "Module").
		Screen("home", nil).
		OnInit(func(context.Context, capability.Adapters) error { return errors.New("boom") }).
		OnDestroy(func(context.Context) error {
			destroyed = true
			return nil
		}).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.Error(t, err)

	require.NoError(t, f.modules.Unregister(context.Background(), "m1"))
	assert.True(t, destroyed)
	assert.False(t, f.modules.Has("m1"))
}

func TestUnregister_UnknownIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.NoError(t, f.modules.Unregister(context.Background(), "ghost"))
}

func TestReRegisterAfterUnregister(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	calls := 0
	def := module.New("m1", "Module").
		UseCase("uc", func(capability.Adapters) (any, error) {
			calls++
			return calls, nil
		}).
		MustBuild()

	_, err := f.modules.Register(context.Background(), def)
	require.NoError(t, err)
	v, err := module.ResolveUseCase[int](f.c, "m1", "uc")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, f.modules.Unregister(context.Background(), "m1"))
	_, err = f.modules.Register(context.Background(), def)
	require.NoError(t, err)

	v, err = module.ResolveUseCase[int](f.c, "m1", "uc")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestModulesAndScreensOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for _, def := range []module.Definition{
		module.New("b", "B").Screen("b1", nil).Screen("b2", nil).MustBuild(),
		module.New("a", "A").Screen("a1", nil).MustBuild(),
		module.New("c", "C").Screen("c1", nil).MustBuild(),
	} {
		_, err := f.modules.Register(ctx, def)
		require.NoError(t, err)
	}
	require.NoError(t, f.modules.Unregister(ctx, "a"))

	var ids []string
	for _, m := range f.modules.Modules() {
		ids = append(ids, m.ID)
		assert.True(t, m.Loaded())
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	var screens []string
	for _, s := range f.modules.Screens() {
		screens = append(screens, s.ModuleID+"/"+s.Screen.Name)
	}
	assert.Equal(t, []string{"b/b1", "b/b2", "c/c1"}, screens)
}

func TestRegister_ReportsMetrics(t *testing.T) {
	t.Parallel()

	c := core.NewContainer()
	providers := capability.NewRegistry(c)
	m := metrics.NewCollector("test")
	reg := module.NewRegistry(c, providers, module.WithMetrics(m))

	_, err := reg.Register(context.Background(), module.New("ok", "OK").Screen("home", nil).MustBuild())
	require.NoError(t, err)
	_, err = reg.Register(context.Background(), module.Definition{ID: "bad", Requires: []string{"nope"}})
	require.Error(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_module_loaded"])
	assert.True(t, names["test_module_registrations_total"])
}
