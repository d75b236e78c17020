package main

import "github.com/Mohsinsiddi/koneko/cmd"

func main() {
	cmd.Execute()
}
