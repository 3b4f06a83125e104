// Package main provides the entry point for the onionwatch CLI.
//
// onionwatch checks whether Tor hidden services are alive and collects
// public indicators (emails, cryptocurrency addresses, exposed server-status
// pages) from them. It reaches onion sites through a local Tor proxy, a
// Tor2Web gateway in cloud sandboxes, or direct connections as a last resort.
//
// Usage:
//
//	onionwatch check <url>...
//	onionwatch check --list <file>
//	onionwatch investigate <url>...
//
// See --help for all available options.
package main

func main() {
	Execute()
}
