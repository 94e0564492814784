package main

import "github.com/siteray/siteray-agent/cmd"

func main() {
	cmd.Execute()
}
