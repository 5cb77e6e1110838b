package main

import (
	"github.com/Laisky/laisky-blog-moderation/cmd"
)

func main() {
	cmd.Execute()
}
