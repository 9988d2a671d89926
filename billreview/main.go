package main

import (
	"os"

	"github.com/clarity-dx/bill-review/billreview/cli"
	"github.com/clarity-dx/bill-review/log"
)

func main() {
	app := cli.GetApp()
	if err := app.Run(os.Args); err != nil {
		log.API.Fatal(err)
	}
}
