package main

import "github.com/sentinelx/host-scanner/cmd/cli"

func main() {
	cli.Main()
}
