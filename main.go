package main

import "streetsight/cmd"

func main() {
	cmd.Execute()
}
