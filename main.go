package main

import "github.com/mabhi256/heapref/cmd"

func main() {
	cmd.Execute()
}
