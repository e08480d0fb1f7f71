package main

import (
	"os"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/i18n"
	"github.com/kubit-go/kubit/lucid"
	"github.com/sirupsen/logrus"
)

var version = "dev"

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		logrus.Fatal(err)
	}

	ignitor := kubit.NewIgnitor(cwd, kubit.Options{
		Name:    "kubit",
		Version: version,
		Providers: []kubit.Provider{
			&lucid.DatabaseServiceProvider{},
			&i18n.I18nProvider{},
		},
		WatchConfig: true,
	})

	if err := ignitor.Ace().Handle(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
