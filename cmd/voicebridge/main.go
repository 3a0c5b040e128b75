package main

import (
	"os"

	"horse.fit/voicebridge/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
