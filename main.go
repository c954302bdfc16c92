package main

import "pixelsync-backend/cmd"

func main() {
	cmd.Run()
}
