// Command delaymem simulates delay lines that keep their samples in external
// memory.
package main

func main() {
	Execute()
}
