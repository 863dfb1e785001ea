package main

import "github.com/nextlevelbuilder/casetriage/cmd"

func main() {
	cmd.Execute()
}
