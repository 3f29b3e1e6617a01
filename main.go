package main

import "github.com/diffsec/govern/cmd"

func main() {
	cmd.Execute()
}
