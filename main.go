package main

import "github.com/crater-build/crater/cmd"

func main() {
	cmd.Execute()
}
