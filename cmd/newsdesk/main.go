// Command newsdesk runs and operates the newsroom job pipeline.
package main

func main() {
	Execute()
}
