// Command spynl runs the Spynl API middleware and its maintenance tools.
package main

func main() {
	Execute()
}
