package main

import "github.com/MeKo-Tech/selectmap/internal/cmd"

func main() {
	cmd.Execute()
}
