package main

import (
	"quickeval/cmd/quickeval/commands"
	"quickeval/pkg/serviceutil"
)

func main() {
	err := commands.ExecuteContext(serviceutil.SignalContext())
	if err != nil {
		serviceutil.Fatal("quickeval failed", err)
	}
}
