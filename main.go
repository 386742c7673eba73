package main

import "habit-streak-backend/cmd"

func main() {
	cmd.Run()
}
