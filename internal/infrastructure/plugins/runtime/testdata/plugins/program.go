package main

var started bool

func main() {
	started = true
}

func Run() map[string]bool {
	return map[string]bool{"started": started}
}
