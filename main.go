package main

import "github.com/conneroisu/transformer/cmd"

func main() {
	cmd.Execute()
}
