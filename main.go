package main

import "github.com/ngld/dlibbuild/cmd"

func main() {
	cmd.Execute()
}
