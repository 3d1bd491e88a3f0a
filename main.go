package main

import "github.com/harmonialab/harmonia/cmd"

func main() {
	cmd.Execute()
}
