package main

import "github.com/ritiek/smsdb-import/internal/cmd"

func main() {
	cmd.Execute()
}
