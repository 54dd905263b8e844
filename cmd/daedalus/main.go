package main

import "github.com/wehubfusion/Daedalus/internal/cli"

func main() {
	cli.Execute()
}
