package main

import "github.com/Mohsinsiddi/w3raffle/cmd"

func main() {
	cmd.Execute()
}
