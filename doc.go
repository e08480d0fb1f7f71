/*
Package kubit is a full stack web application framework built around a
string keyed IoC container and service providers.

# Overview

Applications are composed of providers. Each provider registers bindings in
the container (Register), wires them together once everything is registered
(Boot), reacts when the app starts serving (Ready) and releases resources on
Shutdown. The Ignitor boots the application for the requested run mode: the
Ace console kernel (cobra), the http server or a bare application for tests.

# Usage

	package main

	import (
		"os"

		"github.com/kubit-go/kubit"
		"github.com/kubit-go/kubit/lucid"
	)

	func main() {
		cwd, _ := os.Getwd()

		ignitor := kubit.NewIgnitor(cwd, kubit.Options{
			Name:      "blog",
			Providers: []kubit.Provider{&lucid.DatabaseServiceProvider{}},
			Initializer: func(app *kubit.Application) error {
				app.Routes().Get("/posts", listPosts)
				return nil
			},
		})

		if err := ignitor.Ace().Handle(os.Args[1:]); err != nil {
			os.Exit(1)
		}
	}

Bindings are resolved by name, Use adds type safety:

	db := kubit.MustUse[*database.Database](app.Container(), "Kubit/Database")
*/
package kubit
