package main

import "wayfarer/cmd"

func main() {
	cmd.Execute()
}
