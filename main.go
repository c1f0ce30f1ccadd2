/*
	Copyright 2023 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/lapclock/cmd"

func main() {
	cmd.Execute()
}
