package main

import (
	"os"

	"condorview/internal/app"
)

func main() {
	os.Exit(app.Execute())
}
