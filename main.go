package main

import "gamification-service/internal/cli"

func main() {
	cli.Execute()
}
