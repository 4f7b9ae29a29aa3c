// Package main provides the chatnotify command line client.
package main

func main() {
	Execute()
}
