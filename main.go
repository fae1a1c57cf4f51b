package main

import (
	"github.com/ColonelBlimp/ultrasonic/cmd"
	"github.com/ColonelBlimp/ultrasonic/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
