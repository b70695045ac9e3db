package main

import "github.com/bryanchriswhite/FocusRecorder/cmd/focusrecorder/commands"

func main() {
	commands.Execute()
}
