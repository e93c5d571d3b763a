package main

import "github.com/custodia-project/custodia/cmd"

func main() {
	cmd.Execute()
}
