package main

import "comproom/cmd"

func main() {
	cmd.Execute()
}
