package main

import "github.com/JacobCoffee/python-source-builds/cmd"

func main() {
	cmd.Execute()
}
