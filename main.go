package main

import "github.com/tessiv/ereserve-dl/cmd"

func main() {
	cmd.Execute()
}
