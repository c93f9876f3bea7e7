package main

import "github.com/ngld/pkgbuild/cmd"

func main() {
	cmd.Execute()
}
