package main

import "cgm-alerts/internal/cli"

func main() {
	cli.Execute()
}
