package main

import "github.com/curaious/bizops/cmd"

func main() {
	cmd.Execute()
}
