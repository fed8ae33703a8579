package main

import (
	"graphsync/internal/cmd"
)

func main() {
	cmd.Run()
}
