package main

import "github.com/linesmerrill/evchat/cmd"

func main() {
	cmd.Execute()
}
