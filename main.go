package main

import "github.com/kronigert/timsCompare/cmd"

func main() {
	cmd.Execute()
}
