package main

import (
	"github.com/mortarbuild/mortar/cmd/mortar/internal"
)

func main() {
	internal.Execute()
}
