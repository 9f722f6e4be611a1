package main

import "github.com/twigtools/twig/cmd"

func main() {
	cmd.Execute()
}
