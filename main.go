package main

import "github.com/zhubert/gameforge/cmd"

func main() {
	cmd.Execute()
}
