package main

import (
	"os"

	"horse.fit/glance/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
