package main

import (
	"github.com/pepperpots/fusehpm/cmd"
)

func main() {
	cmd.Execute()
}
