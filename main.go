package main

import "github.com/bascanada/logmerge/cmd"

func main() {
	cmd.Execute()
}
