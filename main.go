package main

import "github.com/kiesman99/bandcrop/cmd"

func main() {
	cmd.Execute()
}
