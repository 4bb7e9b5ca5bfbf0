package main

import (
	cmd "github.com/openshift-qe/qetools/cmd/qetools"
)

func main() {
	cmd.Execute()
}
