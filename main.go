package main

import "media-downloader/cmd"

func main() {
	cmd.Execute()
}
