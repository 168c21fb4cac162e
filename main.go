package main

import "github.com/marcus/kasir/cmd"

// Version is stamped by release builds with -ldflags "-X main.Version=v1.2.3".
var Version = "dev"

func main() {
	cmd.SetVersion(cmd.ResolveVersion(Version))
	cmd.Execute()
}
