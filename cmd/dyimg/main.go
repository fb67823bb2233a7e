package main

import (
	"os"

	"douyin-image-miner/cmd/dyimg/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
