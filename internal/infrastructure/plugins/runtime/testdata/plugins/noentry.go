package noentry

func Helper() int {
	return 42
}
