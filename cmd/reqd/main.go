package main

import "github.com/rduplain/reqd/cmd/reqd/cmd"

func main() {
	cmd.Execute()
}
