package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/skekre98/composer/bus"
	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/module"
)

// Action types shared by the demo modules.
const (
	ActionLogout      = "auth:logout"
	ActionCurrentUser = "auth:current-user"
)

const storageCapability = "storage"

// memoryStore is an in-process storage provider for the demo.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{data: map[string]string{}} }

func (*memoryStore) Capability() string { return storageCapability }

func (s *memoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *memoryStore) Set(key, val string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = val
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

const sessionKey = "session.user"

// Session is the auth module's use-case.
type Session struct {
	store *memoryStore
}

func (s *Session) Login(user string) { s.store.Set(sessionKey, user) }

func (s *Session) Logout() { s.store.Delete(sessionKey) }

func (s *Session) User() (string, bool) { return s.store.Get(sessionKey) }

// authModule owns the session and answers auth actions on the bus.
func authModule(b *bus.Bus) (module.Definition, error) {
	var unregister []func()
	return module.New("auth", "Authentication").
		Requires(storageCapability, capability.LoggerCapability).
		Screen("login", "LoginScreen").
		UseCase("session", func(adapters capability.Adapters) (any, error) {
			store, err := capability.As[*memoryStore](adapters, storageCapability)
			if err != nil {
				return nil, err
			}
			return &Session{store: store}, nil
		}).
		OnInit(func(_ context.Context, adapters capability.Adapters) error {
			store, err := capability.As[*memoryStore](adapters, storageCapability)
			if err != nil {
				return err
			}
			sess := &Session{store: store}
			log := capability.LoggerFrom(adapters)
			unregister = append(unregister,
				b.Register(ActionLogout, func(context.Context, bus.Action) (any, error) {
					sess.Logout()
					log.Info("session cleared")
					return nil, nil
				}),
				b.Register(ActionCurrentUser, func(context.Context, bus.Action) (any, error) {
					user, _ := sess.User()
					return user, nil
				}),
			)
			return nil
		}).
		OnDestroy(func(context.Context) error {
			for _, u := range unregister {
				u()
			}
			unregister = nil
			return nil
		}).
		Build()
}

// Greeter is the profile module's use-case. It reaches the auth module only
// through the bus.
type Greeter struct {
	bus *bus.Bus
}

func (g *Greeter) Greet(ctx context.Context) (string, error) {
	user, err := bus.QueryAs[string](ctx, g.bus, bus.Action{Type: ActionCurrentUser})
	if err != nil {
		return "", err
	}
	if user == "" {
		return "hello, stranger", nil
	}
	return fmt.Sprintf("hello, %s", user), nil
}

func (g *Greeter) SignOut(ctx context.Context) error {
	return g.bus.Dispatch(ctx, bus.Action{Type: ActionLogout}).Err
}

func profileModule(b *bus.Bus) (module.Definition, error) {
	return module.New("profile", "Profile").
		Requires(capability.LoggerCapability).
		Screen("profile", "ProfileScreen", map[string]any{"title": "Your profile"}).
		Screen("settings", "SettingsScreen").
		UseCase("greeter", module.Provide(func(capability.Adapters) *Greeter { return &Greeter{bus: b} })).
		Build()
}
