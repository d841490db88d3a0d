package main

import "go.pilab.hu/idcore/cmd/idpctl/cmd"

func main() {
	cmd.Execute()
}
