package sapling_test

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ARTM2000/sapling"
)

// Types used in examples only.
type Logger struct{ Prefix string }
type Config struct{ DSN string }
type Database struct {
	Config *Config
	Logger *Logger
}

func (db *Database) Close() error {
	fmt.Println("database closed")
	return nil
}

type Greeter interface {
	Greet() string
}
type englishGreeter struct{}

func (g *englishGreeter) Greet() string { return "hello" }

type spanishGreeter struct{}

func (g *spanishGreeter) Greet() string { return "hola" }

type Repository[T any] struct{ Logger *Logger }

type User struct{ Name string }

func ExampleNewRegistry() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(func() *Logger { return &Logger{Prefix: "app"} })

	p, err := reg.CreateProvider()
	if err != nil {
		panic(err)
	}

	logger, _ := sapling.Resolve[*Logger](p)
	fmt.Println(logger.Prefix)
	// Output: app
}

func ExampleResolve() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(func() *Config { return &Config{DSN: "postgres://localhost"} })
	_ = reg.RegisterSingleton(func() *Logger { return &Logger{Prefix: "app"} })
	_ = reg.RegisterTransient(func(cfg *Config, log *Logger) *Database {
		return &Database{Config: cfg, Logger: log}
	})
	p, _ := reg.CreateProvider()

	db, err := sapling.Resolve[*Database](p)
	if err != nil {
		panic(err)
	}
	fmt.Println(db.Config.DSN)
	fmt.Println(db.Logger.Prefix)
	// Output:
	// postgres://localhost
	// app
}

func ExampleUnresolve() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(func() *Config { return &Config{DSN: "postgres://localhost"} })
	_ = reg.RegisterSingleton(func() *Logger { return &Logger{Prefix: "app"} })
	_ = reg.RegisterTransient(func(cfg *Config, log *Logger) *Database {
		return &Database{Config: cfg, Logger: log}
	})
	p, _ := reg.CreateProvider()

	db, _ := sapling.Resolve[*Database](p)
	fmt.Println(db.Config.DSN)
	_ = sapling.Unresolve(p, db)
	// Output:
	// postgres://localhost
	// database closed
}

func ExampleProvider_InitScope() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(func() *Logger { return &Logger{Prefix: "app"} })
	_ = reg.RegisterScoped(func(log *Logger) *Config { return &Config{DSN: log.Prefix + "-db"} })
	p, _ := reg.CreateProvider()

	scope := p.InitScope()
	c1, _ := sapling.Resolve[*Config](scope)
	c2, _ := sapling.Resolve[*Config](scope)
	fmt.Println(c1 == c2, c1.DSN)

	other := p.InitScope()
	c3, _ := sapling.Resolve[*Config](other)
	fmt.Println(c1 == c3)

	_ = scope.Close()
	_ = other.Close()
	_ = p.Shutdown(context.Background())
	// Output:
	// true app-db
	// false
}

func ExampleResolveNamed() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingletonWithFactory(func() Greeter { return &englishGreeter{} }, sapling.WithName("en"))
	_ = reg.RegisterSingletonWithFactory(func() Greeter { return &spanishGreeter{} }, sapling.WithName("es"))
	p, _ := reg.CreateProvider()

	en, _ := sapling.ResolveNamed[Greeter](p, "en")
	es, _ := sapling.ResolveNamed[Greeter](p, "es")
	fmt.Println(en.Greet())
	fmt.Println(es.Greet())
	// Output:
	// hello
	// hola
}

func ExampleResolveSlice() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(func() Greeter { return &englishGreeter{} })
	_ = reg.RegisterTransientWithFactory(func() Greeter { return &spanishGreeter{} })
	p, _ := reg.CreateProvider()

	greeters, _ := sapling.ResolveSlice[Greeter](p)
	for _, g := range greeters {
		fmt.Println(g.Greet())
	}
	_ = sapling.UnresolveSlice(p, greeters)
	// Output:
	// hello
	// hola
}

func ExampleResolveGeneric() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(func() *Logger { return &Logger{Prefix: "repo"} })
	_ = reg.RegisterGeneric("repository", sapling.Singleton, func(params []reflect.Type) (any, error) {
		if params[0] != reflect.TypeFor[User]() {
			return nil, fmt.Errorf("no repository for %s", params[0])
		}
		return func(log *Logger) *Repository[User] { return &Repository[User]{Logger: log} }, nil
	})
	p, _ := reg.CreateProvider()

	users, err := sapling.ResolveGeneric[*Repository[User]](p, "repository", reflect.TypeFor[User]())
	if err != nil {
		panic(err)
	}
	fmt.Println(users.Logger.Prefix)
	// Output: repo
}

func ExampleWithDeinit() {
	reg := sapling.NewRegistry()
	_ = reg.RegisterSingleton(
		func() *Logger { return &Logger{Prefix: "app"} },
		sapling.WithDeinit(func(l *Logger) { fmt.Println("flushing", l.Prefix) }),
	)
	p, _ := reg.CreateProvider(sapling.WithEagerSingletons())

	_ = p.Shutdown(context.Background())
	// Output: flushing app
}
